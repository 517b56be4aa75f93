package bcamsim

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"code.hybscloud.com/atomix"

	"github.com/ardnew/softreg/bcam"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
	"github.com/ardnew/softreg/transport/mem"
)

// Option configures a [Sim].
type Option func(*Sim)

// WithLatency delays every request completion by d. Requests complete on a
// timer goroutine, so the host observes the request bit set for at least d.
func WithLatency(d time.Duration) Option {
	return func(s *Sim) { s.latency = d }
}

// WithStuck makes the model ignore every request, leaving request bits set.
func WithStuck(stuck bool) Option {
	return func(s *Sim) { s.stuck.Store(stuck) }
}

type entry struct {
	used    bool
	payload []uint64 // register images of the data window
}

// Sim models one TinyBCAM instance on a register space.
type Sim struct {
	space *mem.Space
	cfg   bcam.Config
	log   *slog.Logger

	latency time.Duration
	stuck   atomix.Bool

	mu   sync.Mutex
	rows []entry
}

// New attaches a model of the CAM described by cfg to space.
func New(space *mem.Space, cfg bcam.Config, opts ...Option) (*Sim, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if space.Width() != cfg.Geometry.WordWidth {
		return nil, fmt.Errorf("%w: space has %d-bit words, table %d-bit",
			pkg.ErrInvalidGeometry, space.Width(), cfg.Geometry.WordWidth)
	}
	end := int(cfg.Base+cfg.Layout.Data0) + cfg.Geometry.RowWords()
	if end > space.Size() {
		return nil, fmt.Errorf("%w: table %s ends at 0x%x beyond space of %d words",
			pkg.ErrInvalidGeometry, cfg.Name, end, space.Size())
	}

	s := &Sim{
		space: space,
		cfg:   cfg,
		log:   pkg.Logger(pkg.ComponentSim).With("table", cfg.Name),
		rows:  make([]entry, cfg.Geometry.NumRows),
	}
	for _, opt := range opts {
		opt(s)
	}
	space.OnWrite(s.observe)
	return s, nil
}

// SetStuck switches stuck mode on or off. Requests issued while stuck are
// never completed.
func (s *Sim) SetStuck(stuck bool) { s.stuck.Store(stuck) }

func (s *Sim) addr(reg uint32) uint32 { return s.cfg.Base + reg }

func (s *Sim) bit(n uint) uint64 { return 1 << n }

// observe reacts to host writes of the control register.
func (s *Sim) observe(addr uint32, v uint64) {
	if addr != s.addr(s.cfg.Layout.Ctrl) || s.stuck.Load() {
		return
	}
	l := s.cfg.Layout
	switch {
	case v&s.bit(l.ResetBit) != 0:
		s.complete(s.reset)
	case v&s.bit(l.ReadBit) != 0:
		s.complete(s.read)
	case v&s.bit(l.WriteBit) != 0:
		s.complete(s.write)
	}
}

func (s *Sim) complete(op func()) {
	if s.latency <= 0 {
		op()
		return
	}
	time.AfterFunc(s.latency, op)
}

// updateCtrl atomically applies set and unset masks to the control
// register so a concurrent host write is never lost.
func (s *Sim) updateCtrl(set, unset uint64) {
	ctrl := s.addr(s.cfg.Layout.Ctrl)
	for {
		old := s.space.Peek(ctrl)
		if s.space.CompareAndSwap(ctrl, old, old&^unset|set) {
			return
		}
	}
}

func (s *Sim) selected() (uint32, bool) {
	id := s.space.Peek(s.addr(s.cfg.Layout.EntryID))
	return uint32(id), id < uint64(s.cfg.Geometry.NumRows)
}

func (s *Sim) read() {
	l := s.cfg.Layout
	id, ok := s.selected()
	var used bool
	if ok {
		s.mu.Lock()
		e := s.rows[id]
		used = e.used
		data := s.addr(l.Data0)
		for i := range s.cfg.Geometry.RowWords() {
			var w uint64
			if e.used {
				w = e.payload[i]
			}
			s.space.Poke(data+uint32(i), w)
		}
		s.mu.Unlock()
	}

	var set uint64
	if used {
		set = s.bit(l.InUseBit)
	}
	s.updateCtrl(set, s.bit(l.ReadBit)|s.bit(l.InUseBit))
	s.log.Debug("read completed", "row", id, "in_use", used)
}

func (s *Sim) write() {
	l := s.cfg.Layout
	id, ok := s.selected()
	used := s.space.Peek(s.addr(l.Ctrl))&s.bit(l.InUseBit) != 0
	if ok {
		s.mu.Lock()
		if used {
			payload := make([]uint64, s.cfg.Geometry.RowWords())
			data := s.addr(l.Data0)
			for i := range payload {
				payload[i] = s.space.Peek(data + uint32(i))
			}
			s.rows[id] = entry{used: true, payload: payload}
		} else {
			s.rows[id] = entry{}
		}
		s.mu.Unlock()
	}
	s.updateCtrl(0, s.bit(l.WriteBit))
	s.log.Debug("write completed", "row", id, "in_use", used)
}

func (s *Sim) reset() {
	s.mu.Lock()
	clear(s.rows)
	s.mu.Unlock()

	l := s.cfg.Layout
	for _, reg := range []uint32{l.LookupCount, l.HitCount, l.MissCount} {
		s.space.Poke(s.addr(reg), 0)
	}
	s.updateCtrl(0, s.bit(l.ResetBit)|s.bit(l.InUseBit))
	s.log.Debug("reset completed")
}

// =============================================================================
// Inspection
// =============================================================================

// decode returns the row stored in e.
func (s *Sim) decode(id uint32, e entry) (bcam.Row, error) {
	g := s.cfg.Geometry
	key := region(e.payload[:g.KeyWords()], s.cfg.Layout.Order)
	value := region(e.payload[g.ValueOffset():], s.cfg.Layout.Order)

	r := bcam.Row{ID: id}
	var err error
	if r.Key, err = g.DecodeKey(key); err != nil {
		return bcam.Row{}, err
	}
	if r.ActionID, r.ActionParams, err = g.DecodeValue(value); err != nil {
		return bcam.Row{}, err
	}
	return r, nil
}

// region converts register images in address order back to most
// significant word first.
func region(words []uint64, order transport.Order) []uint64 {
	out := append([]uint64(nil), words...)
	if order == transport.LittleEndian {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

// Row returns the stored contents of row id and whether it is in use.
func (s *Sim) Row(id uint32) (bcam.Row, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id >= uint32(len(s.rows)) || !s.rows[id].used {
		return bcam.Row{}, false
	}
	r, err := s.decode(id, s.rows[id])
	if err != nil {
		return bcam.Row{}, false
	}
	return r, true
}

// Len returns the number of rows in use.
func (s *Sim) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.rows {
		if e.used {
			n++
		}
	}
	return n
}

// Lookup searches the table for key as the data plane would, updating the
// lookup, hit and miss counters. The lowest matching row wins.
func (s *Sim) Lookup(key *big.Int) (bcam.Row, bool) {
	if key == nil {
		key = new(big.Int)
	}
	l := s.cfg.Layout
	s.bump(l.LookupCount)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.rows {
		if !e.used {
			continue
		}
		r, err := s.decode(uint32(id), e)
		if err != nil || r.Key.Cmp(key) != 0 {
			continue
		}
		s.bump(l.HitCount)
		return r, true
	}
	s.bump(l.MissCount)
	return bcam.Row{}, false
}

func (s *Sim) bump(reg uint32) {
	addr := s.addr(reg)
	for {
		old := s.space.Peek(addr)
		if s.space.CompareAndSwap(addr, old, old+1) {
			return
		}
	}
}
