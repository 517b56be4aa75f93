package bcam

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/ardnew/softreg/codec"
	"github.com/ardnew/softreg/pkg"
)

// Format names the sub-fields of a table's key and action parameters.
//
// Key fields are concatenated in declaration order, the first most
// significant. Action parameters are concatenated in reverse, so the first
// declared parameter occupies the least significant bits. Sub-fields may
// sum to less than the geometry widths; the upper bits are then zero.
type Format struct {
	key    *codec.Layout
	params *codec.Layout // reversed declaration order
}

// NewFormat builds a format from key and parameter field lists. Either list
// may be empty.
func NewFormat(key, params []codec.FieldDef) (*Format, error) {
	f := &Format{}
	var err error
	if f.key, err = codec.NewLayout(key...); err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	p, err := codec.NewLayout(params...)
	if err != nil {
		return nil, fmt.Errorf("params: %w", err)
	}
	f.params = p.Reversed()
	return f, nil
}

// MustFormat is like NewFormat but panics on error.
func MustFormat(key, params []codec.FieldDef) *Format {
	f, err := NewFormat(key, params)
	if err != nil {
		panic(err)
	}
	return f
}

// KeyFields returns the key sub-fields in declaration order.
func (f *Format) KeyFields() []codec.FieldDef { return f.key.Fields() }

// ParamFields returns the parameter sub-fields in declaration order.
func (f *Format) ParamFields() []codec.FieldDef { return f.params.Reversed().Fields() }

// Check reports whether the sub-fields fit geometry g.
func (f *Format) Check(g Geometry) error {
	if f.key.Bits() > g.KeyBits {
		return fmt.Errorf("%w: key fields span %d bits, key is %d", pkg.ErrInvalidGeometry, f.key.Bits(), g.KeyBits)
	}
	if f.params.Bits() > g.ActionParamBits {
		return fmt.Errorf("%w: parameter fields span %d bits, params are %d",
			pkg.ErrInvalidGeometry, f.params.Bits(), g.ActionParamBits)
	}
	return nil
}

// Entry is a table entry given by named sub-field values.
type Entry struct {
	Keys     map[string]uint64
	ActionID uint64
	Params   map[string]uint64
}

// String lists the sub-fields of e in name order.
func (e Entry) String() string {
	var b strings.Builder
	write := func(m map[string]uint64) {
		for _, k := range slices.Sorted(maps.Keys(m)) {
			fmt.Fprintf(&b, " %s=0x%x", k, m[k])
		}
	}
	b.WriteString("keys:")
	write(e.Keys)
	fmt.Fprintf(&b, " action=%d params:", e.ActionID)
	write(e.Params)
	return b.String()
}

// Row composes e into row id.
func (f *Format) Row(id uint32, e Entry) (Row, error) {
	key, err := f.key.JoinNamed(e.Keys)
	if err != nil {
		return Row{}, fmt.Errorf("row %d key: %w", id, err)
	}
	params, err := f.params.JoinNamed(e.Params)
	if err != nil {
		return Row{}, fmt.Errorf("row %d params: %w", id, err)
	}
	return Row{ID: id, Key: key, ActionID: e.ActionID, ActionParams: params}, nil
}

// Entry splits r into named sub-fields. Bits of r above the sub-fields
// must be zero.
func (f *Format) Entry(r Row) (Entry, error) {
	keys, err := f.key.SplitNamed(r.Key)
	if err != nil {
		return Entry{}, fmt.Errorf("row %d key: %w", r.ID, err)
	}
	params, err := f.params.SplitNamed(r.ActionParams)
	if err != nil {
		return Entry{}, fmt.Errorf("row %d params: %w", r.ID, err)
	}
	return Entry{Keys: keys, ActionID: r.ActionID, Params: params}, nil
}
