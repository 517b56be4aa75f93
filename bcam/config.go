package bcam

import (
	"fmt"
	"time"

	"github.com/ardnew/softreg/bitfield"
	"github.com/ardnew/softreg/codec"
	"github.com/ardnew/softreg/handshake"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// Geometry describes the rows of one CAM instance. Keys and action
// parameters have no width limit; the action ID fits in 64 bits.
type Geometry struct {
	KeyBits         uint   // Width of the lookup key
	ActionIDBits    uint   // Width of the action selector
	ActionParamBits uint   // Width of the action parameters
	NumRows         uint32 // Number of table rows
	WordWidth       uint   // Register width W
}

// KeyWords returns the number of registers holding a key.
func (g Geometry) KeyWords() int { return ceilDiv(g.KeyBits, g.WordWidth) }

// ValueWords returns the number of registers holding the action ID and
// parameters.
func (g Geometry) ValueWords() int { return ceilDiv(g.ActionIDBits+g.ActionParamBits, g.WordWidth) }

// RowWords returns the size of the row payload window. The key region is
// followed by a mask region of the same size, reserved for ternary CAMs.
func (g Geometry) RowWords() int { return 2*g.KeyWords() + g.ValueWords() }

// ValueOffset returns the offset of the value region from the first data
// register.
func (g Geometry) ValueOffset() uint32 { return uint32(2 * g.KeyWords()) }

// ValueBits returns the width of the composite action value.
func (g Geometry) ValueBits() uint { return g.ActionIDBits + g.ActionParamBits }

// Validate checks that the geometry can be encoded.
func (g Geometry) Validate() error {
	switch {
	case g.WordWidth == 0 || g.WordWidth > codec.MaxWidth:
		return fmt.Errorf("%w: word width %d", pkg.ErrInvalidGeometry, g.WordWidth)
	case g.KeyBits == 0:
		return fmt.Errorf("%w: key width %d", pkg.ErrInvalidGeometry, g.KeyBits)
	case g.ActionIDBits > codec.MaxWidth:
		return fmt.Errorf("%w: action id width %d", pkg.ErrInvalidGeometry, g.ActionIDBits)
	case g.ValueBits() == 0:
		return fmt.Errorf("%w: action width %d+%d", pkg.ErrInvalidGeometry, g.ActionIDBits, g.ActionParamBits)
	case g.NumRows == 0:
		return fmt.Errorf("%w: no rows", pkg.ErrInvalidGeometry)
	}
	return nil
}

func ceilDiv(n, d uint) int {
	if d == 0 {
		return 0
	}
	return int((n + d - 1) / d)
}

// =============================================================================
// Register Layout
// =============================================================================

// Layout is the register map of a CAM instance, in word addresses relative
// to the instance base.
type Layout struct {
	Ctrl          uint32
	EntryID       uint32
	EmulationMode uint32
	LookupCount   uint32
	HitCount      uint32
	MissCount     uint32
	Data0         uint32

	// Control register bits
	ReadBit  uint
	WriteBit uint
	ResetBit uint
	InUseBit uint

	// Order of multi-word key and value transfers
	Order transport.Order
}

// DefaultLayout returns the TinyBCAM register map.
func DefaultLayout() Layout {
	return Layout{
		Ctrl:          0x00,
		EntryID:       0x01,
		EmulationMode: 0x02,
		LookupCount:   0x03,
		HitCount:      0x04,
		MissCount:     0x05,
		Data0:         0x10,
		ReadBit:       0,
		WriteBit:      1,
		ResetBit:      2,
		InUseBit:      31,
		Order:         transport.BigEndian,
	}
}

// Register field names.
const (
	FieldReadFlag      = "rd_flag"
	FieldWriteFlag     = "wr_flag"
	FieldReset         = "reset"
	FieldEntryInUse    = "entry_in_use"
	FieldEntryID       = "entry_id"
	FieldEmulationMode = "emulation_mode"
	FieldLookupCount   = "lookup_count"
	FieldHitCount      = "hit_count"
	FieldMissCount     = "miss_count"
)

// Fields builds the named field table of the layout for registers of
// wordWidth bits. It fails when control bits collide or do not fit.
func (l Layout) Fields(wordWidth uint) (*bitfield.Map, error) {
	return bitfield.NewMap(wordWidth,
		bitfield.Bit(FieldReadFlag, l.Ctrl, l.ReadBit),
		bitfield.Bit(FieldWriteFlag, l.Ctrl, l.WriteBit),
		bitfield.Bit(FieldReset, l.Ctrl, l.ResetBit),
		bitfield.Bit(FieldEntryInUse, l.Ctrl, l.InUseBit),
		bitfield.Word(FieldEntryID, l.EntryID, wordWidth),
		bitfield.Word(FieldEmulationMode, l.EmulationMode, wordWidth),
		bitfield.Word(FieldLookupCount, l.LookupCount, wordWidth),
		bitfield.Word(FieldHitCount, l.HitCount, wordWidth),
		bitfield.Word(FieldMissCount, l.MissCount, wordWidth),
	)
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures a [Client].
type Config struct {
	Name     string             // Instance name used in logs
	Base     uint32             // Word address of the instance
	Geometry Geometry           // Row geometry
	Layout   Layout             // Register map
	Timeout  time.Duration      // Handshake budget per operation
	Strategy handshake.Strategy // Poll pacing
	Format   *Format            // Named sub-fields, optional
}

// DefaultConfig returns a configuration for a TinyBCAM of geometry g at
// base address 0.
func DefaultConfig(g Geometry) Config {
	return Config{
		Name:     "bcam",
		Geometry: g,
		Layout:   DefaultLayout(),
		Timeout:  handshake.DefaultTimeout,
		Strategy: handshake.StrategySpin,
	}
}

// Validate checks the geometry, the register map and that the payload
// window does not overlap a control register.
func (c Config) Validate() error {
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	if _, err := c.Layout.Fields(c.Geometry.WordWidth); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", pkg.ErrInvalidGeometry, c.Timeout)
	}
	if c.Format != nil {
		if err := c.Format.Check(c.Geometry); err != nil {
			return err
		}
	}

	l := c.Layout
	regs := map[string]uint32{
		"ctrl":           l.Ctrl,
		"entry_id":       l.EntryID,
		"emulation_mode": l.EmulationMode,
		"lookup_count":   l.LookupCount,
		"hit_count":      l.HitCount,
		"miss_count":     l.MissCount,
	}
	seen := make(map[uint32]string, len(regs))
	end := l.Data0 + uint32(c.Geometry.RowWords())
	for name, addr := range regs {
		if other, dup := seen[addr]; dup && other != name {
			return fmt.Errorf("%w: %s and %s share register 0x%x", pkg.ErrInvalidGeometry, name, other, addr)
		}
		seen[addr] = name
		if addr >= l.Data0 && addr < end {
			return fmt.Errorf("%w: %s register 0x%x inside data window [0x%x, 0x%x)",
				pkg.ErrInvalidGeometry, name, addr, l.Data0, end)
		}
	}
	return nil
}
