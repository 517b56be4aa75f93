package bcam

import (
	"fmt"
	"math/big"

	"github.com/ardnew/softreg/codec"
	"github.com/ardnew/softreg/pkg"
)

// Row is one table entry. Key and ActionParams may be wider than 64 bits;
// a nil value reads as zero.
type Row struct {
	ID           uint32
	Key          *big.Int
	ActionID     uint64
	ActionParams *big.Int
}

// Uint returns v as a row value.
func Uint(v uint64) *big.Int { return new(big.Int).SetUint64(v) }

// String returns a compact description of the row.
func (r Row) String() string {
	return fmt.Sprintf("row %d: key=0x%s action=%d params=0x%s", r.ID, hex(r.Key), r.ActionID, hex(r.ActionParams))
}

// Equal reports whether r and o describe the same entry.
func (r Row) Equal(o Row) bool {
	return r.ID == o.ID && r.ActionID == o.ActionID &&
		orZero(r.Key).Cmp(orZero(o.Key)) == 0 &&
		orZero(r.ActionParams).Cmp(orZero(o.ActionParams)) == 0
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func hex(v *big.Int) string { return orZero(v).Text(16) }

func fits(v *big.Int, width uint) bool {
	v = orZero(v)
	return v.Sign() >= 0 && uint(v.BitLen()) <= width
}

// CheckRow validates the row index and field widths of r.
func (g Geometry) CheckRow(r Row) error {
	if r.ID >= g.NumRows {
		return fmt.Errorf("%w: %d (rows %d)", pkg.ErrRowIndexOutOfRange, r.ID, g.NumRows)
	}
	if !fits(r.Key, g.KeyBits) {
		return fmt.Errorf("%w: key 0x%s exceeds %d bits", pkg.ErrInvalidValue, hex(r.Key), g.KeyBits)
	}
	if r.ActionID>>g.ActionIDBits != 0 {
		return fmt.Errorf("%w: action id 0x%x exceeds %d bits", pkg.ErrInvalidValue, r.ActionID, g.ActionIDBits)
	}
	if !fits(r.ActionParams, g.ActionParamBits) {
		return fmt.Errorf("%w: action params 0x%s exceeds %d bits", pkg.ErrInvalidValue, hex(r.ActionParams), g.ActionParamBits)
	}
	return nil
}

// EncodeKey packs key into the key region, most significant word first.
func (g Geometry) EncodeKey(key *big.Int) ([]uint64, error) {
	fields, err := codec.Wide(key, g.KeyBits)
	if err != nil {
		return nil, err
	}
	return codec.Pack(fields, g.WordWidth)
}

// EncodeValue packs the composite action value params<<aid | id into the
// value region, most significant word first.
func (g Geometry) EncodeValue(actionID uint64, params *big.Int) ([]uint64, error) {
	fields, err := codec.Wide(params, g.ActionParamBits)
	if err != nil {
		return nil, err
	}
	if g.ActionIDBits > 0 {
		fields = append(fields, codec.Field{Value: actionID, Width: g.ActionIDBits})
	}
	return codec.Pack(fields, g.WordWidth)
}

// DecodeKey extracts the key from the key region.
func (g Geometry) DecodeKey(words []uint64) (*big.Int, error) {
	widths := codec.WideWidths(g.KeyBits)
	v, err := codec.Unpack(words, widths, g.WordWidth)
	if err != nil {
		return nil, err
	}
	return codec.Join(v, widths), nil
}

// DecodeValue extracts the action ID and parameters from the value region.
func (g Geometry) DecodeValue(words []uint64) (actionID uint64, params *big.Int, err error) {
	widths := codec.WideWidths(g.ActionParamBits)
	n := len(widths)
	if g.ActionIDBits > 0 {
		widths = append(widths, g.ActionIDBits)
	}
	v, err := codec.Unpack(words, widths, g.WordWidth)
	if err != nil {
		return 0, nil, err
	}
	if g.ActionIDBits > 0 {
		actionID = v[n]
	}
	return actionID, codec.Join(v[:n], widths[:n]), nil
}
