package transport

import (
	"fmt"

	"github.com/ardnew/softreg/pkg"
)

// Transport is the raw word read/write primitive over a register bus.
//
// Addresses are word addresses, not byte addresses. Values carry at most the
// bus word width in their low bits; implementations mask or reject wider
// values as the hardware would.
//
// Implementations are not required to be safe for concurrent use.
type Transport interface {
	// ReadWord reads the register at addr.
	ReadWord(addr uint32) (uint64, error)

	// WriteWord writes v to the register at addr.
	WriteWord(addr uint32, v uint64) error
}

// MultiWord is implemented by transports that move several consecutive
// registers in one bus transaction.
type MultiWord interface {
	Transport

	// ReadWords fills dst from registers addr, addr+1, ...
	ReadWords(addr uint32, dst []uint64) error

	// WriteWords writes src to registers addr, addr+1, ...
	WriteWords(addr uint32, src []uint64) error
}

// Order selects how a multi-word integer maps onto ascending addresses.
type Order uint8

// Word orders.
const (
	// BigEndian places words[0], the most significant word, at the lowest
	// address.
	BigEndian Order = iota
	// LittleEndian places words[0] at the highest address, so the least
	// significant word sits at the lowest address.
	LittleEndian
)

// String returns the order name.
func (o Order) String() string {
	switch o {
	case BigEndian:
		return "big-endian"
	case LittleEndian:
		return "little-endian"
	default:
		return fmt.Sprintf("Order(%d)", uint8(o))
	}
}

// ReadWords reads len(words) consecutive registers starting at addr into
// words, most significant word first, honoring order. It uses a single
// MultiWord transaction when t supports one.
func ReadWords(t Transport, addr uint32, words []uint64, order Order) error {
	if len(words) == 0 {
		return nil
	}
	if mw, ok := t.(MultiWord); ok {
		if err := mw.ReadWords(addr, words); err != nil {
			return pkg.TransportError("read words", addr, err)
		}
	} else {
		for i := range words {
			v, err := t.ReadWord(addr + uint32(i))
			if err != nil {
				return pkg.TransportError("read", addr+uint32(i), err)
			}
			words[i] = v
		}
	}
	if order == LittleEndian {
		reverse(words)
	}
	return nil
}

// WriteWords writes words, most significant word first, to consecutive
// registers starting at addr, honoring order. words is not modified.
func WriteWords(t Transport, addr uint32, words []uint64, order Order) error {
	if len(words) == 0 {
		return nil
	}
	src := words
	if order == LittleEndian {
		src = append([]uint64(nil), words...)
		reverse(src)
	}
	if mw, ok := t.(MultiWord); ok {
		if err := mw.WriteWords(addr, src); err != nil {
			return pkg.TransportError("write words", addr, err)
		}
		return nil
	}
	for i, v := range src {
		if err := t.WriteWord(addr+uint32(i), v); err != nil {
			return pkg.TransportError("write", addr+uint32(i), err)
		}
	}
	return nil
}

func reverse(w []uint64) {
	for i, j := 0, len(w)-1; i < j; i, j = i+1, j-1 {
		w[i], w[j] = w[j], w[i]
	}
}

// Window exposes the registers of one device instance at a base offset of
// a shared bus. Addresses passed to a Window are relative to Base.
type Window struct {
	T    Transport
	Base uint32
}

// NewWindow returns a Window of t starting at base.
func NewWindow(t Transport, base uint32) *Window {
	// Nested windows collapse into one offset
	if w, ok := t.(*Window); ok {
		return &Window{T: w.T, Base: w.Base + base}
	}
	return &Window{T: t, Base: base}
}

// ReadWord reads the register at Base+addr.
func (w *Window) ReadWord(addr uint32) (uint64, error) {
	return w.T.ReadWord(w.Base + addr)
}

// WriteWord writes the register at Base+addr.
func (w *Window) WriteWord(addr uint32, v uint64) error {
	return w.T.WriteWord(w.Base+addr, v)
}

// ReadWords reads consecutive registers from Base+addr.
func (w *Window) ReadWords(addr uint32, dst []uint64) error {
	return ReadWords(w.T, w.Base+addr, dst, BigEndian)
}

// WriteWords writes consecutive registers from Base+addr.
func (w *Window) WriteWords(addr uint32, src []uint64) error {
	return WriteWords(w.T, w.Base+addr, src, BigEndian)
}

var _ MultiWord = (*Window)(nil)
