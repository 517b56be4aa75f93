//go:build linux

package mmap

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"unsafe"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// Errors.
var (
	// ErrAddress indicates an access outside the mapped window.
	ErrAddress = errors.New("mmap: address out of range")

	// ErrClosed indicates an access after Close.
	ErrClosed = errors.New("mmap: region closed")
)

// Region is a memory-mapped register window. Each register occupies
// width/8 bytes at byte offset addr*width/8 and is accessed with a single
// aligned load or store, as AXI-Lite and PCIe BAR windows require.
type Region struct {
	path  string
	width uint

	mu   sync.RWMutex
	f    *os.File
	data []byte
}

// Open maps size bytes of path starting at byte offset, which must be
// page aligned. width is the register width in bits, 32 or 64.
func Open(path string, offset int64, size int, width uint) (*Region, error) {
	if width != 32 && width != 64 {
		return nil, fmt.Errorf("%w: word width %d, want 32 or 64", pkg.ErrInvalidValue, width)
	}
	if size <= 0 || size%int(width/8) != 0 {
		return nil, fmt.Errorf("%w: window of %d bytes", pkg.ErrInvalidGeometry, size)
	}
	if offset%int64(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("%w: offset 0x%x not page aligned", pkg.ErrInvalidGeometry, offset)
	}

	f, err := os.OpenFile(path, os.O_RDWR|syscall.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	data, err := syscall.Mmap(int(f.Fd()), offset, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	pkg.LogInfo(pkg.ComponentTransport, "register window mapped",
		"path", path, "offset", offset, "bytes", size, "width", width)
	return &Region{path: path, width: width, f: f, data: data}, nil
}

// Size returns the number of registers in the window.
func (r *Region) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.data) / int(r.width/8)
}

// Width returns the register width in bits.
func (r *Region) Width() uint { return r.width }

// ptr returns the address of register addr. The caller holds r.mu.
func (r *Region) ptr(addr uint32) (unsafe.Pointer, error) {
	if r.data == nil {
		return nil, ErrClosed
	}
	stride := uint64(r.width / 8)
	off := uint64(addr) * stride
	if off+stride > uint64(len(r.data)) {
		return nil, fmt.Errorf("%w: 0x%x", ErrAddress, addr)
	}
	return unsafe.Pointer(&r.data[off]), nil
}

// ReadWord implements [transport.Transport].
func (r *Region) ReadWord(addr uint32) (uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.ptr(addr)
	if err != nil {
		return 0, err
	}
	if r.width == 32 {
		return uint64(atomic.LoadUint32((*uint32)(p))), nil
	}
	return atomic.LoadUint64((*uint64)(p)), nil
}

// WriteWord implements [transport.Transport].
func (r *Region) WriteWord(addr uint32, v uint64) error {
	if r.width == 32 && v > 0xFFFF_FFFF {
		return fmt.Errorf("%w: 0x%x exceeds 32-bit register", pkg.ErrInvalidValue, v)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, err := r.ptr(addr)
	if err != nil {
		return err
	}
	if r.width == 32 {
		atomic.StoreUint32((*uint32)(p), uint32(v))
	} else {
		atomic.StoreUint64((*uint64)(p), v)
	}
	return nil
}

// Close unmaps the window and closes the backing file.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil
	}
	var result error
	if err := syscall.Munmap(r.data); err != nil {
		result = multierror.Append(result, fmt.Errorf("munmap %s: %w", r.path, err))
	}
	if err := r.f.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	r.data, r.f = nil, nil
	return result
}

var _ transport.Transport = (*Region)(nil)
