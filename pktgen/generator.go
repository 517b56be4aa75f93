package pktgen

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ardnew/softreg/bitfield"
	"github.com/ardnew/softreg/handshake"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// Errors.
var (
	// ErrFlowRAMEmpty indicates a start request with no flow defined.
	ErrFlowRAMEmpty = errors.New("pktgen: flow definition RAM empty")

	// ErrFlowRAMFull indicates no flow id remains for a new definition.
	ErrFlowRAMFull = errors.New("pktgen: flow definition RAM full")
)

// Counters holds a transmit packet and byte count pair.
type Counters struct {
	Packets uint64
	Bytes   uint64
}

// Generator drives one network packet generator.
//
// The flow RAM can not be read back, so the generator keeps a shadow of
// whether it holds any definition. The shadow starts empty; a Generator
// attached to a running instance must call [Generator.ClearFlowDefs]
// before adding flows. Generator is not safe for concurrent use.
type Generator struct {
	cfg  Config
	bus  transport.Transport
	regs *bitfield.Map
	busy *handshake.Handshake

	empty bool
}

// New creates a generator driver for the instance described by cfg on t.
func New(t transport.Transport, cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	regs, err := cfg.Layout.Fields(cfg.WordWidth)
	if err != nil {
		return nil, err
	}
	g := &Generator{
		cfg:   cfg,
		bus:   transport.NewWindow(t, cfg.Base),
		regs:  regs,
		empty: true,
	}
	busy, _ := regs.Spec(FieldSampleBusy)
	g.busy = handshake.New(g.bus, busy, cfg.WordWidth, cfg.Timeout, cfg.Strategy)
	return g, nil
}

// Config returns the generator configuration.
func (g *Generator) Config() Config { return g.cfg }

// SetTimeout sets the counter sampling budget.
func (g *Generator) SetTimeout(d time.Duration) {
	g.cfg.Timeout = d
	g.busy.Timeout = d
}

func (g *Generator) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", g.cfg.Name, op, err)
}

// pulse writes 1 then 0 to a strobe bit.
func (g *Generator) pulse(name string) error {
	if err := g.regs.Set(g.bus, name, 1); err != nil {
		return err
	}
	return g.regs.Set(g.bus, name, 0)
}

// =============================================================================
// Transmit Control
// =============================================================================

// ClockPeriodPs returns the generator clock period in picoseconds.
func (g *Generator) ClockPeriodPs() (uint64, error) {
	ps, err := g.regs.Get(g.bus, FieldClockPeriod)
	return ps, g.wrap("clock period", err)
}

// Start starts transmission. It fails with [ErrFlowRAMEmpty] when no flow
// has been defined.
func (g *Generator) Start() error {
	if g.empty {
		return g.wrap("start", ErrFlowRAMEmpty)
	}
	if err := g.regs.Set(g.bus, FieldTransmit, 1); err != nil {
		return g.wrap("start", err)
	}
	pkg.LogInfo(pkg.ComponentGenerator, "transmit started", "generator", g.cfg.Name)
	return nil
}

// Stop stops transmission.
func (g *Generator) Stop() error {
	return g.wrap("stop", g.regs.Set(g.bus, FieldTransmit, 0))
}

// Transmitting reports whether the transmit bit is set.
func (g *Generator) Transmitting() (bool, error) {
	v, err := g.regs.Get(g.bus, FieldTransmit)
	return v != 0, g.wrap("transmit status", err)
}

// SetFiniteTx stops the generator and arms it to send n packets on the
// next start.
func (g *Generator) SetFiniteTx(n uint64) error {
	if err := g.Stop(); err != nil {
		return err
	}
	if err := g.regs.Set(g.bus, FieldFinitePackets, n); err != nil {
		return g.wrap("finite tx", err)
	}
	return g.wrap("finite tx", g.regs.Set(g.bus, FieldFiniteTx, 1))
}

// SetIndefiniteTx stops the generator and arms it to send until stopped.
func (g *Generator) SetIndefiniteTx() error {
	if err := g.Stop(); err != nil {
		return err
	}
	return g.wrap("indefinite tx", g.regs.Set(g.bus, FieldFiniteTx, 0))
}

// ShaperSetting converts a line rate into the shaper's bytes per clock in
// whole and 16-bit fraction parts, truncating toward zero.
func ShaperSetting(rateMbps float64, clockPeriodPs uint64) (whole, frac uint64, err error) {
	if rateMbps < 0 || math.IsNaN(rateMbps) || math.IsInf(rateMbps, 0) {
		return 0, 0, fmt.Errorf("%w: rate %v Mbps", pkg.ErrInvalidValue, rateMbps)
	}
	if clockPeriodPs == 0 {
		return 0, 0, fmt.Errorf("%w: zero clock period", pkg.ErrInvalidGeometry)
	}
	bytesPerSecond := rateMbps * 1e6 / 8
	clocksPerSecond := 1e12 / float64(clockPeriodPs)
	perClock := bytesPerSecond / clocksPerSecond
	w := math.Floor(perClock)
	return uint64(w), uint64(math.Floor((perClock - w) * (1 << ShaperFracBits))), nil
}

// SetRateMbps stops the generator and programs the shaper for rateMbps.
// Rates above the shaper's range fail with [pkg.ErrInvalidValue].
func (g *Generator) SetRateMbps(rateMbps float64) error {
	if err := g.Stop(); err != nil {
		return err
	}
	ps, err := g.regs.Get(g.bus, FieldClockPeriod)
	if err != nil {
		return g.wrap("set rate", err)
	}
	whole, frac, err := ShaperSetting(rateMbps, ps)
	if err != nil {
		return g.wrap("set rate", err)
	}
	if err := g.regs.Set(g.bus, FieldShaperWhole, whole); err != nil {
		return g.wrap("set rate", err)
	}
	if err := g.regs.Set(g.bus, FieldShaperFrac, frac); err != nil {
		return g.wrap("set rate", err)
	}
	pkg.LogDebug(pkg.ComponentGenerator, "rate set",
		"generator", g.cfg.Name, "mbps", rateMbps, "whole", whole, "frac", frac)
	return nil
}

// RateMbps returns the programmed shaper rate.
func (g *Generator) RateMbps() (float64, error) {
	ps, err := g.regs.Get(g.bus, FieldClockPeriod)
	if err != nil {
		return 0, g.wrap("rate", err)
	}
	whole, err := g.regs.Get(g.bus, FieldShaperWhole)
	if err != nil {
		return 0, g.wrap("rate", err)
	}
	frac, err := g.regs.Get(g.bus, FieldShaperFrac)
	if err != nil {
		return 0, g.wrap("rate", err)
	}
	if ps == 0 {
		return 0, g.wrap("rate", fmt.Errorf("%w: zero clock period", pkg.ErrInvalidGeometry))
	}
	perClock := float64(whole) + float64(frac)/(1<<ShaperFracBits)
	return perClock * (1e12 / float64(ps)) * 8 / 1e6, nil
}

// =============================================================================
// Flow Definitions
// =============================================================================

// AddFlowDef stops the generator and appends f to the flow RAM, returning
// its flow id.
func (g *Generator) AddFlowDef(f FlowDef) (uint32, error) {
	words, err := f.Encode(g.cfg.WordWidth)
	if err != nil {
		return 0, g.wrap("add flow", err)
	}
	if err := g.Stop(); err != nil {
		return 0, err
	}

	var id uint64
	if !g.empty {
		last, err := g.regs.Get(g.bus, FieldLastFlowID)
		if err != nil {
			return 0, g.wrap("add flow", err)
		}
		sel, _ := g.regs.Spec(FieldFlowDefSel)
		if id = last + 1; id > sel.Mask() {
			return 0, g.wrap("add flow", fmt.Errorf("%w: %d flows", ErrFlowRAMFull, last+1))
		}
	}
	if err := transport.WriteWords(g.bus, g.cfg.Layout.FlowDefData, words, transport.BigEndian); err != nil {
		return 0, g.wrap("add flow", err)
	}
	if err := g.regs.Set(g.bus, FieldFlowDefSel, id); err != nil {
		return 0, g.wrap("add flow", err)
	}
	if err := g.regs.Set(g.bus, FieldLastFlowID, id); err != nil {
		return 0, g.wrap("add flow", err)
	}
	if err := g.pulse(FieldFlowDefWrite); err != nil {
		return 0, g.wrap("add flow", err)
	}
	g.empty = false

	pkg.LogDebug(pkg.ComponentGenerator, "flow added", "generator", g.cfg.Name, "flow", id)
	return uint32(id), nil
}

// StagedFlowDef decodes the flow definition currently held in the write
// data registers, which is the last one added.
func (g *Generator) StagedFlowDef() (FlowDef, error) {
	words := make([]uint64, FlowDefLayout.Words(g.cfg.WordWidth))
	if err := transport.ReadWords(g.bus, g.cfg.Layout.FlowDefData, words, transport.BigEndian); err != nil {
		return FlowDef{}, g.wrap("read flow", err)
	}
	f, err := DecodeFlowDef(words, g.cfg.WordWidth)
	return f, g.wrap("read flow", err)
}

// ClearFlowDefs empties the flow RAM.
func (g *Generator) ClearFlowDefs() error {
	if err := g.Stop(); err != nil {
		return err
	}
	if err := g.regs.Set(g.bus, FieldLastFlowID, 0); err != nil {
		return g.wrap("clear flows", err)
	}
	g.empty = true
	return nil
}

// NumFlows returns the number of defined flows.
func (g *Generator) NumFlows() (int, error) {
	if g.empty {
		return 0, nil
	}
	last, err := g.regs.Get(g.bus, FieldLastFlowID)
	if err != nil {
		return 0, g.wrap("flow count", err)
	}
	return int(last) + 1, nil
}

// =============================================================================
// Counters
// =============================================================================

// sample strobes a counter snapshot and waits for hardware to finish it.
func (g *Generator) sample(strobe string) error {
	if err := g.pulse(strobe); err != nil {
		return err
	}
	_, err := g.busy.Wait()
	return err
}

// counter reads a 64-bit counter from its low/high register pair.
func (g *Generator) counter(lo uint32) (uint64, error) {
	var w [2]uint64
	if err := transport.ReadWords(g.bus, lo, w[:], transport.LittleEndian); err != nil {
		return 0, err
	}
	// w[0] is the high word
	if g.cfg.WordWidth >= 64 {
		return w[1], nil
	}
	return w[0]<<g.cfg.WordWidth | w[1], nil
}

func (g *Generator) pair(pkts, bytes uint32) (Counters, error) {
	var c Counters
	var err error
	if c.Packets, err = g.counter(pkts); err != nil {
		return Counters{}, err
	}
	if c.Bytes, err = g.counter(bytes); err != nil {
		return Counters{}, err
	}
	return c, nil
}

// GeneratorCounters samples and returns the generator totals.
func (g *Generator) GeneratorCounters() (Counters, error) {
	if err := g.sample(FieldSampleGen); err != nil {
		return Counters{}, g.wrap("generator counters", err)
	}
	c, err := g.pair(g.cfg.Layout.GenPackets, g.cfg.Layout.GenBytes)
	return c, g.wrap("generator counters", err)
}

// FlowCounters samples and returns the counters of one flow.
func (g *Generator) FlowCounters(flow uint32) (Counters, error) {
	if err := g.regs.Set(g.bus, FieldCounterFlowSel, uint64(flow)); err != nil {
		return Counters{}, g.wrap("flow counters", err)
	}
	if err := g.sample(FieldSampleSelected); err != nil {
		return Counters{}, g.wrap("flow counters", err)
	}
	c, err := g.pair(g.cfg.Layout.FlowPackets, g.cfg.Layout.FlowBytes)
	return c, g.wrap("flow counters", err)
}

// AllFlowCounters samples every flow at once and returns their counters
// indexed by flow id.
func (g *Generator) AllFlowCounters() ([]Counters, error) {
	n, err := g.NumFlows()
	if err != nil {
		return nil, err
	}
	if err := g.sample(FieldSampleAll); err != nil {
		return nil, g.wrap("flow counters", err)
	}
	out := make([]Counters, n)
	for i := range out {
		if err := g.regs.Set(g.bus, FieldCounterFlowSel, uint64(i)); err != nil {
			return nil, g.wrap("flow counters", err)
		}
		if out[i], err = g.pair(g.cfg.Layout.FlowPackets, g.cfg.Layout.FlowBytes); err != nil {
			return nil, g.wrap("flow counters", err)
		}
	}
	return out, nil
}
