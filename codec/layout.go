package codec

import (
	"fmt"

	"github.com/ardnew/softreg/pkg"
)

// FieldDef names one field of a record layout.
type FieldDef struct {
	Name  string
	Width uint
}

// Layout is the ordered, named field list of a multi-word record.
//
// A Layout is the single description of a record format: both Pack and
// Unpack are driven from it, so a field can not be named or sized
// differently on the encode and decode paths.
type Layout struct {
	fields []FieldDef
	index  map[string]int
	total  uint
}

// NewLayout validates defs and returns a Layout. Names must be unique and
// widths must be in 1..64.
func NewLayout(defs ...FieldDef) (*Layout, error) {
	l := &Layout{
		fields: append([]FieldDef(nil), defs...),
		index:  make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		if d.Width == 0 || d.Width > MaxWidth {
			return nil, fmt.Errorf("%w: field %q has width %d", pkg.ErrInvalidValue, d.Name, d.Width)
		}
		if _, dup := l.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate field %q", pkg.ErrInvalidGeometry, d.Name)
		}
		l.index[d.Name] = i
		l.total += d.Width
	}
	return l, nil
}

// MustLayout is like NewLayout but panics on error. It is intended for
// package-level record definitions.
func MustLayout(defs ...FieldDef) *Layout {
	l, err := NewLayout(defs...)
	if err != nil {
		panic(err)
	}
	return l
}

// Fields returns a copy of the field definitions in order.
func (l *Layout) Fields() []FieldDef {
	return append([]FieldDef(nil), l.fields...)
}

// Widths returns the field widths in order.
func (l *Layout) Widths() []uint {
	w := make([]uint, len(l.fields))
	for i, f := range l.fields {
		w[i] = f.Width
	}
	return w
}

// Bits returns the total record width.
func (l *Layout) Bits() uint { return l.total }

// Words returns the number of words of wordWidth bits the record occupies,
// or 0 when wordWidth is not in 1..64.
func (l *Layout) Words(wordWidth uint) int {
	n, err := WordCount(l.Widths(), wordWidth)
	if err != nil {
		return 0
	}
	return n
}

// Index returns the position of the named field.
func (l *Layout) Index(name string) (int, error) {
	i, ok := l.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", pkg.ErrUnknownField, name)
	}
	return i, nil
}

// Pack serializes values, one per field in layout order.
func (l *Layout) Pack(values []uint64, wordWidth uint) ([]uint64, error) {
	if len(values) != len(l.fields) {
		return nil, fmt.Errorf("%w: %d values for %d fields", pkg.ErrInvalidValue, len(values), len(l.fields))
	}
	fields := make([]Field, len(values))
	for i, v := range values {
		f := l.fields[i]
		if v&^mask(f.Width) != 0 {
			return nil, fmt.Errorf("%w: %s value 0x%x exceeds %d bits", pkg.ErrInvalidValue, f.Name, v, f.Width)
		}
		fields[i] = Field{Value: v, Width: f.Width}
	}
	return Pack(fields, wordWidth)
}

// Unpack extracts one value per field in layout order.
func (l *Layout) Unpack(words []uint64, wordWidth uint) ([]uint64, error) {
	return Unpack(words, l.Widths(), wordWidth)
}
