package bitfield

import (
	"fmt"
	"sort"

	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// Spec describes a contiguous bit range [LSB, MSB] of the register at Addr.
type Spec struct {
	Name string
	Addr uint32
	LSB  uint
	MSB  uint
}

// Bit returns a single-bit Spec.
func Bit(name string, addr uint32, bit uint) Spec {
	return Spec{Name: name, Addr: addr, LSB: bit, MSB: bit}
}

// Range returns a Spec covering bits msb down to lsb inclusive.
func Range(name string, addr uint32, msb, lsb uint) Spec {
	return Spec{Name: name, Addr: addr, LSB: lsb, MSB: msb}
}

// Word returns a Spec covering the low width bits of a register.
func Word(name string, addr uint32, width uint) Spec {
	return Spec{Name: name, Addr: addr, LSB: 0, MSB: width - 1}
}

// Width returns the number of bits in the field.
func (s Spec) Width() uint { return s.MSB - s.LSB + 1 }

// Mask returns the unshifted value mask of the field.
func (s Spec) Mask() uint64 { return 1<<s.Width() - 1 }

// String returns a human-readable description of the field.
func (s Spec) String() string {
	if s.LSB == s.MSB {
		return fmt.Sprintf("%s@0x%04x[%d]", s.Name, s.Addr, s.LSB)
	}
	return fmt.Sprintf("%s@0x%04x[%d:%d]", s.Name, s.Addr, s.MSB, s.LSB)
}

// Validate reports whether s is well formed for a register of wordWidth bits.
func (s Spec) Validate(wordWidth uint) error {
	if wordWidth == 0 || wordWidth > 64 {
		return fmt.Errorf("%w: word width %d", pkg.ErrInvalidValue, wordWidth)
	}
	if s.MSB < s.LSB {
		return fmt.Errorf("%w: %s has msb %d below lsb %d", pkg.ErrInvalidValue, s.Name, s.MSB, s.LSB)
	}
	if s.MSB >= wordWidth {
		return fmt.Errorf("%w: %s exceeds %d-bit word", pkg.ErrInvalidValue, s, wordWidth)
	}
	return nil
}

func (s Spec) overlaps(o Spec) bool {
	return s.Addr == o.Addr && s.LSB <= o.MSB && o.LSB <= s.MSB
}

// =============================================================================
// Accessors
// =============================================================================

// Get reads the register holding s and returns the field value.
func Get(t transport.Transport, s Spec) (uint64, error) {
	w, err := t.ReadWord(s.Addr)
	if err != nil {
		return 0, pkg.TransportError("read", s.Addr, err)
	}
	return (w >> s.LSB) & s.Mask(), nil
}

// Set writes value into the field s of a register wordWidth bits wide.
//
// A field spanning the whole word is written directly. Any narrower field
// is updated with a read-modify-write that leaves the other bits of the
// register unchanged. The sequence is not atomic; callers sharing a
// register between goroutines must serialize access.
func Set(t transport.Transport, s Spec, value uint64, wordWidth uint) error {
	if err := s.Validate(wordWidth); err != nil {
		return err
	}
	if value&^s.Mask() != 0 {
		return fmt.Errorf("%w: 0x%x does not fit %s", pkg.ErrInvalidValue, value, s)
	}

	if s.LSB == 0 && s.Width() == wordWidth {
		return pkg.TransportError("write", s.Addr, t.WriteWord(s.Addr, value))
	}

	w, err := t.ReadWord(s.Addr)
	if err != nil {
		return pkg.TransportError("read", s.Addr, err)
	}
	w = w&^(s.Mask()<<s.LSB) | value<<s.LSB
	return pkg.TransportError("write", s.Addr, t.WriteWord(s.Addr, w))
}

// =============================================================================
// Map
// =============================================================================

// Map is the named field table of one register block.
type Map struct {
	width uint
	specs map[string]Spec
}

// NewMap builds a field table for registers wordWidth bits wide.
// Every spec must fit the word, names must be unique, and fields sharing
// an address must not overlap.
func NewMap(wordWidth uint, specs ...Spec) (*Map, error) {
	m := &Map{width: wordWidth, specs: make(map[string]Spec, len(specs))}
	for i, s := range specs {
		if err := s.Validate(wordWidth); err != nil {
			return nil, err
		}
		if _, dup := m.specs[s.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", pkg.ErrInvalidGeometry, s.Name)
		}
		for _, o := range specs[:i] {
			if s.overlaps(o) {
				return nil, fmt.Errorf("%w: %s and %s", pkg.ErrFieldOverlap, s, o)
			}
		}
		m.specs[s.Name] = s
	}
	return m, nil
}

// WordWidth returns the register width of the map.
func (m *Map) WordWidth() uint { return m.width }

// Spec returns the field with the given name.
func (m *Map) Spec(name string) (Spec, error) {
	s, ok := m.specs[name]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", pkg.ErrUnknownField, name)
	}
	return s, nil
}

// Names returns the field names ordered by address and then bit position.
func (m *Map) Names() []string {
	specs := make([]Spec, 0, len(m.specs))
	for _, s := range m.specs {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool {
		if specs[i].Addr != specs[j].Addr {
			return specs[i].Addr < specs[j].Addr
		}
		return specs[i].LSB < specs[j].LSB
	})
	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.Name
	}
	return names
}

// Get reads the named field.
func (m *Map) Get(t transport.Transport, name string) (uint64, error) {
	s, err := m.Spec(name)
	if err != nil {
		return 0, err
	}
	return Get(t, s)
}

// Set writes the named field.
func (m *Map) Set(t transport.Transport, name string, value uint64) error {
	s, err := m.Spec(name)
	if err != nil {
		return err
	}
	return Set(t, s, value, m.width)
}
