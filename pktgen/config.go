package pktgen

import (
	"fmt"
	"time"

	"github.com/ardnew/softreg/bitfield"
	"github.com/ardnew/softreg/handshake"
	"github.com/ardnew/softreg/pkg"
)

// Layout is the register map of a generator, in word addresses relative
// to the instance base. Counter addresses name the low word of a two-word
// pair; the high word follows it.
type Layout struct {
	Params        uint32
	CounterStatus uint32
	GenPackets    uint32
	GenBytes      uint32
	FlowPackets   uint32
	FlowBytes     uint32
	TxControl     uint32
	Shaper        uint32
	CounterCtrl   uint32
	FlowDefCtrl   uint32
	FlowDefData   uint32
}

// DefaultLayout returns the network packet generator register map. The
// first 16 words hold the common AVMM registers.
func DefaultLayout() Layout {
	return Layout{
		Params:        16,
		CounterStatus: 17,
		GenPackets:    18,
		GenBytes:      20,
		FlowPackets:   22,
		FlowBytes:     24,
		TxControl:     26,
		Shaper:        27,
		CounterCtrl:   28,
		FlowDefCtrl:   29,
		FlowDefData:   30,
	}
}

// Register field names.
const (
	FieldClockPeriod    = "clock_period_ps"
	FieldSampleBusy     = "tx_counter_sample_busy"
	FieldFinitePackets  = "tx_finite_packet_count"
	FieldFiniteTx       = "finite_tx"
	FieldTransmit       = "transmit"
	FieldShaperWhole    = "shaper_whole"
	FieldShaperFrac     = "shaper_frac"
	FieldCounterFlowSel = "tx_counter_flow_sel"
	FieldSampleSelected = "sample_selected_flow_counters"
	FieldSampleAll      = "sample_all_flow_counters"
	FieldSampleGen      = "sample_generator_counters"
	FieldLastFlowID     = "last_flow_id"
	FieldFlowDefSel     = "flow_def_flow_sel"
	FieldFlowDefWrite   = "flow_def_wr_enable"
)

// ShaperFracBits is the number of fraction bits of the rate shaper.
const ShaperFracBits = 16

// Fields builds the named field table of the layout for registers of
// wordWidth bits.
func (l Layout) Fields(wordWidth uint) (*bitfield.Map, error) {
	return bitfield.NewMap(wordWidth,
		bitfield.Word(FieldClockPeriod, l.Params, 32),
		bitfield.Bit(FieldSampleBusy, l.CounterStatus, 0),
		bitfield.Range(FieldFinitePackets, l.TxControl, 31, 4),
		bitfield.Bit(FieldFiniteTx, l.TxControl, 1),
		bitfield.Bit(FieldTransmit, l.TxControl, 0),
		bitfield.Range(FieldShaperWhole, l.Shaper, 19, 16),
		bitfield.Range(FieldShaperFrac, l.Shaper, ShaperFracBits-1, 0),
		bitfield.Range(FieldCounterFlowSel, l.CounterCtrl, 15, 4),
		bitfield.Bit(FieldSampleSelected, l.CounterCtrl, 2),
		bitfield.Bit(FieldSampleAll, l.CounterCtrl, 1),
		bitfield.Bit(FieldSampleGen, l.CounterCtrl, 0),
		bitfield.Range(FieldLastFlowID, l.FlowDefCtrl, 27, 16),
		bitfield.Range(FieldFlowDefSel, l.FlowDefCtrl, 15, 4),
		bitfield.Bit(FieldFlowDefWrite, l.FlowDefCtrl, 0),
	)
}

// Config configures a [Generator].
type Config struct {
	Name      string             // Instance name used in logs
	Base      uint32             // Word address of the instance
	Layout    Layout             // Register map
	WordWidth uint               // Register width in bits, at least 32
	Timeout   time.Duration      // Budget for counter sampling
	Strategy  handshake.Strategy // Poll pacing while sampling
}

// DefaultConfig returns a configuration for a generator with 32-bit
// registers at base address 0.
func DefaultConfig() Config {
	return Config{
		Name:      "pktgen",
		Layout:    DefaultLayout(),
		WordWidth: 32,
		Timeout:   handshake.DefaultTimeout,
		Strategy:  handshake.StrategySpin,
	}
}

// Validate checks that the register map fits the word width and that the
// flow definition window does not overlap a control register.
func (c Config) Validate() error {
	if c.WordWidth < 32 || c.WordWidth > 64 {
		return fmt.Errorf("%w: word width %d, want 32..64", pkg.ErrInvalidGeometry, c.WordWidth)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout %v", pkg.ErrInvalidGeometry, c.Timeout)
	}
	if _, err := c.Layout.Fields(c.WordWidth); err != nil {
		return fmt.Errorf("%w: %w", pkg.ErrInvalidGeometry, err)
	}

	l := c.Layout
	lo := l.FlowDefData
	hi := lo + uint32(FlowDefLayout.Words(c.WordWidth))
	regs := []uint32{
		l.Params, l.CounterStatus, l.TxControl, l.Shaper, l.CounterCtrl, l.FlowDefCtrl,
		l.GenPackets, l.GenPackets + 1, l.GenBytes, l.GenBytes + 1,
		l.FlowPackets, l.FlowPackets + 1, l.FlowBytes, l.FlowBytes + 1,
	}
	for _, r := range regs {
		if r >= lo && r < hi {
			return fmt.Errorf("%w: register 0x%x inside flow definition window [0x%x, 0x%x)",
				pkg.ErrInvalidGeometry, r, lo, hi)
		}
	}
	return nil
}
