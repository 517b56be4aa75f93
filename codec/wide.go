package codec

import (
	"fmt"
	"math/big"

	"github.com/ardnew/softreg/pkg"
)

// WideWidths returns the chunk widths that carry a value of width bits,
// most significant chunk first. Every chunk but the first is MaxWidth bits
// wide.
func WideWidths(width uint) []uint {
	if width == 0 {
		return nil
	}
	n := (width + MaxWidth - 1) / MaxWidth
	widths := make([]uint, n)
	widths[0] = width - (n-1)*MaxWidth
	for i := uint(1); i < n; i++ {
		widths[i] = MaxWidth
	}
	return widths
}

// Wide splits v into fields of at most MaxWidth bits covering width bits,
// most significant first, ready for [Pack]. A nil v encodes as zero.
func Wide(v *big.Int, width uint) ([]Field, error) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || uint(v.BitLen()) > width {
		return nil, fmt.Errorf("%w: value 0x%x exceeds %d bits", pkg.ErrInvalidValue, v, width)
	}
	widths := WideWidths(width)
	fields := make([]Field, len(widths))
	shift := width
	chunk := new(big.Int)
	for i, w := range widths {
		shift -= w
		fields[i] = Field{Value: low(chunk.Rsh(v, shift), w), Width: w}
	}
	return fields, nil
}

// low returns the w low bits of a non-negative x.
func low(x *big.Int, w uint) uint64 {
	m := new(big.Int).SetUint64(mask(w))
	return m.And(m, x).Uint64()
}

// Join concatenates values of the given widths into one integer, the first
// value most significant. It is the inverse of [Wide] and of [Layout.Split].
func Join(values []uint64, widths []uint) *big.Int {
	v := new(big.Int)
	chunk := new(big.Int)
	for i, w := range widths {
		v.Lsh(v, w)
		v.Or(v, chunk.SetUint64(values[i]&mask(w)))
	}
	return v
}

// Join concatenates one value per field in layout order into a single
// integer of [Layout.Bits] bits, the first field most significant.
func (l *Layout) Join(values []uint64) (*big.Int, error) {
	if len(values) != len(l.fields) {
		return nil, fmt.Errorf("%w: %d values for %d fields", pkg.ErrInvalidValue, len(values), len(l.fields))
	}
	for i, v := range values {
		f := l.fields[i]
		if v&^mask(f.Width) != 0 {
			return nil, fmt.Errorf("%w: %s value 0x%x exceeds %d bits", pkg.ErrInvalidValue, f.Name, v, f.Width)
		}
	}
	return Join(values, l.Widths()), nil
}

// Split is the inverse of [Layout.Join]. Bits of v above [Layout.Bits]
// must be zero.
func (l *Layout) Split(v *big.Int) ([]uint64, error) {
	if v == nil {
		v = new(big.Int)
	}
	if v.Sign() < 0 || uint(v.BitLen()) > l.total {
		return nil, fmt.Errorf("%w: value 0x%x exceeds %d bits", pkg.ErrInvalidValue, v, l.total)
	}
	values := make([]uint64, len(l.fields))
	shift := l.total
	chunk := new(big.Int)
	for i, f := range l.fields {
		shift -= f.Width
		values[i] = low(chunk.Rsh(v, shift), f.Width)
	}
	return values, nil
}

// JoinNamed is like [Layout.Join] with values given by field name. Every
// field must be present and no other names are accepted.
func (l *Layout) JoinNamed(values map[string]uint64) (*big.Int, error) {
	ordered := make([]uint64, len(l.fields))
	for name, v := range values {
		i, err := l.Index(name)
		if err != nil {
			return nil, err
		}
		ordered[i] = v
	}
	for _, f := range l.fields {
		if _, ok := values[f.Name]; !ok {
			return nil, fmt.Errorf("%w: missing field %q", pkg.ErrInvalidValue, f.Name)
		}
	}
	return l.Join(ordered)
}

// SplitNamed is like [Layout.Split] with values returned by field name.
func (l *Layout) SplitNamed(v *big.Int) (map[string]uint64, error) {
	values, err := l.Split(v)
	if err != nil {
		return nil, err
	}
	named := make(map[string]uint64, len(values))
	for i, f := range l.fields {
		named[f.Name] = values[i]
	}
	return named, nil
}

// Reversed returns a layout with the same fields in reverse order.
func (l *Layout) Reversed() *Layout {
	defs := make([]FieldDef, len(l.fields))
	for i, f := range l.fields {
		defs[len(defs)-1-i] = f
	}
	return MustLayout(defs...)
}
