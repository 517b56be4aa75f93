package mem

import (
	"errors"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"

	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// ErrAddress indicates an access outside the register space.
var ErrAddress = errors.New("mem: address out of range")

// WriteHook observes a host write after it has been stored.
// Hooks run on the writing goroutine and must not call back into
// [Space.WriteWord]; use [Space.Poke] or [Space.CompareAndSwap] instead.
type WriteHook func(addr uint32, v uint64)

// Space is an in-process register space of fixed word width.
//
// Word storage is atomic so a device model running on another goroutine
// (timers, lookup engines) observes host writes in order and the host
// observes model updates without additional locking.
type Space struct {
	words []atomix.Uint64
	width uint
	mask  uint64

	reads  atomix.Int64
	writes atomix.Int64

	mu     sync.RWMutex
	hooks  []WriteHook
	faults map[uint32]error
}

// New creates a register space of size words, each width bits wide.
func New(size int, width uint) (*Space, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d words", pkg.ErrInvalidGeometry, size)
	}
	if width == 0 || width > 64 {
		return nil, fmt.Errorf("%w: word width %d", pkg.ErrInvalidValue, width)
	}
	return &Space{
		words:  make([]atomix.Uint64, size),
		width:  width,
		mask:   1<<width - 1,
		faults: make(map[uint32]error),
	}, nil
}

// Size returns the number of words.
func (s *Space) Size() int { return len(s.words) }

// Width returns the word width in bits.
func (s *Space) Width() uint { return s.width }

// ReadWord reads the word at addr.
func (s *Space) ReadWord(addr uint32) (uint64, error) {
	if err := s.check(addr); err != nil {
		return 0, err
	}
	s.reads.Add(1)
	return s.words[addr].LoadAcquire(), nil
}

// WriteWord stores v at addr and then runs the write hooks.
// Values wider than the word width are rejected.
func (s *Space) WriteWord(addr uint32, v uint64) error {
	if err := s.check(addr); err != nil {
		return err
	}
	if v&^s.mask != 0 {
		return fmt.Errorf("%w: 0x%x exceeds %d-bit word", pkg.ErrInvalidValue, v, s.width)
	}
	s.words[addr].StoreRelease(v)
	s.writes.Add(1)

	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, h := range hooks {
		h(addr, v)
	}
	return nil
}

func (s *Space) check(addr uint32) error {
	if int(addr) >= len(s.words) {
		return fmt.Errorf("%w: 0x%04x (size %d)", ErrAddress, addr, len(s.words))
	}
	s.mu.RLock()
	err := s.faults[addr]
	s.mu.RUnlock()
	return err
}

// OnWrite registers a hook invoked after every host write.
func (s *Space) OnWrite(h WriteHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks[:len(s.hooks):len(s.hooks)], h)
}

// Fault makes every host access of addr fail with err until cleared with a
// nil err.
func (s *Space) Fault(addr uint32, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, addr)
		return
	}
	s.faults[addr] = err
}

// =============================================================================
// Device-side access
// =============================================================================

// Peek returns the word at addr without counting an access, running hooks
// or honoring faults. Out-of-range addresses read as zero.
func (s *Space) Peek(addr uint32) uint64 {
	if int(addr) >= len(s.words) {
		return 0
	}
	return s.words[addr].LoadAcquire()
}

// Poke stores v&mask at addr from the device side.
func (s *Space) Poke(addr uint32, v uint64) {
	if int(addr) >= len(s.words) {
		return
	}
	s.words[addr].StoreRelease(v & s.mask)
}

// CompareAndSwap replaces the word at addr with v if it still holds old.
// Device models use it to clear request bits without losing a concurrent
// host write to the same register.
func (s *Space) CompareAndSwap(addr uint32, old, v uint64) bool {
	if int(addr) >= len(s.words) {
		return false
	}
	return s.words[addr].CompareAndSwapAcqRel(old, v&s.mask)
}

// Stats returns the number of host reads and writes served so far.
func (s *Space) Stats() (reads, writes int64) {
	return s.reads.Load(), s.writes.Load()
}

var _ transport.Transport = (*Space)(nil)
