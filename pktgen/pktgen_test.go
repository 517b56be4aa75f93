package pktgen

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport/mem"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const clockPs = 4000 // 250 MHz

var testFlow = FlowDef{
	MACDA:         0xAAAA_AAAA_AAAA,
	MACSA:         0xBBBB_BBBB_BBBB,
	EtherType:     0xCCCC,
	VLANValid:     true,
	VLANTag:       0x8100_AAAA,
	NumMPLSLabels: 2,
	MPLSLabel0:    0xBBBB_BBBB,
	MPLSLabel1:    0xCCCC_CCCC,
	IPVersion:     4,
	IPIHL:         5,
	IPDSCP:        1,
	IPECN:         1,
	IPLength:      1,
	IPID:          1,
	IPFlags:       1,
	IPFragOfs:     1,
	IPTTL:         1,
	IPProt:        1,
	IPHdrChk:      1,
	IPSA:          0xDDDD_DDDD,
	IPDA:          0xEEEE_EEEE,
	BlenMode:      1,
	BlenMin:       64,
	BlenMax:       1500,
	PayloadMode:   1,
	PayloadValue:  0xFF,
}

// model answers flow writes and counter samples the way the block does.
type model struct {
	space *mem.Space
	l     Layout

	mu         sync.Mutex
	flows      map[uint64][]uint64
	sampledAll bool
	stuckBusy  bool
}

func newModel(t *testing.T) (*mem.Space, *model) {
	t.Helper()
	space, err := mem.New(64, 32)
	if err != nil {
		t.Fatalf("mem.New: %v", err)
	}
	m := &model{space: space, l: DefaultLayout(), flows: make(map[uint64][]uint64)}
	space.Poke(m.l.Params, clockPs)
	space.OnWrite(m.observe)
	return space, m
}

func flowCounts(id uint64) (pkts, bytes uint64) {
	return 100 + id, (id+1)<<32 | 64
}

func (m *model) putCounter(lo uint32, v uint64) {
	m.space.Poke(lo, v&0xFFFF_FFFF)
	m.space.Poke(lo+1, v>>32)
}

func (m *model) observe(addr uint32, v uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch addr {
	case m.l.FlowDefCtrl:
		if v&1 == 0 {
			return
		}
		words := make([]uint64, FlowDefLayout.Words(32))
		for i := range words {
			words[i] = m.space.Peek(m.l.FlowDefData + uint32(i))
		}
		m.flows[v>>4&0xFFF] = words

	case m.l.CounterCtrl:
		if m.stuckBusy && v&7 != 0 {
			m.space.Poke(m.l.CounterStatus, 1)
			return
		}
		sel := v >> 4 & 0xFFF
		if v&2 != 0 {
			m.sampledAll = true
		}
		if v&4 != 0 || m.sampledAll {
			p, b := flowCounts(sel)
			m.putCounter(m.l.FlowPackets, p)
			m.putCounter(m.l.FlowBytes, b)
		}
		if v&1 != 0 {
			m.putCounter(m.l.GenPackets, 0x1_0000_0002)
			m.putCounter(m.l.GenBytes, 0x3_0000_0004)
		}
	}
}

func (m *model) flowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flows)
}

func newGenerator(t *testing.T) (*mem.Space, *model, *Generator) {
	t.Helper()
	space, m := newModel(t)
	cfg := DefaultConfig()
	cfg.Timeout = 20 * time.Millisecond
	g, err := New(space, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return space, m, g
}

// =============================================================================
// FlowDef Tests
// =============================================================================

func TestFlowDef_Encode(t *testing.T) {
	words, err := testFlow.Encode(32)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if len(words) != 13 {
		t.Fatalf("Encode() = %d words, want 13", len(words))
	}
	want := []uint64{0xAAAA_AAAA, 0xAAAA_BBBB, 0xBBBB_BBBB, 0xCCCC_C080}
	for i, w := range want {
		if words[i] != w {
			t.Errorf("words[%d] = 0x%08X, want 0x%08X", i, words[i], w)
		}
	}

	got, err := DecodeFlowDef(words, 32)
	if err != nil {
		t.Fatalf("DecodeFlowDef() error = %v", err)
	}
	if got != testFlow {
		t.Errorf("DecodeFlowDef() = %+v, want %+v", got, testFlow)
	}
}

func TestFlowDef_WordWidths(t *testing.T) {
	tests := []struct {
		width uint
		words int
	}{
		{32, 13},
		{48, 9},
		{64, 7},
	}
	for _, tt := range tests {
		words, err := testFlow.Encode(tt.width)
		if err != nil {
			t.Fatalf("Encode(%d) error = %v", tt.width, err)
		}
		if len(words) != tt.words {
			t.Errorf("Encode(%d) = %d words, want %d", tt.width, len(words), tt.words)
		}
		if got, err := DecodeFlowDef(words, tt.width); err != nil || got != testFlow {
			t.Errorf("DecodeFlowDef(%d) = %+v, %v", tt.width, got, err)
		}
	}
}

func TestFlowDef_EncodeInvalid(t *testing.T) {
	tests := []struct {
		name  string
		field string
		flow  func(*FlowDef)
	}{
		{"ihl", "ip_ihl", func(f *FlowDef) { f.IPIHL = 20 }},
		{"mac", "mac_da", func(f *FlowDef) { f.MACDA = 1 << 48 }},
		{"blen max", "pkt_blen_max", func(f *FlowDef) { f.BlenMax = 1 << 14 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testFlow
			tt.flow(&f)
			_, err := f.Encode(32)
			if !errors.Is(err, pkg.ErrInvalidValue) {
				t.Fatalf("Encode() error = %v, want ErrInvalidValue", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %s", err, tt.field)
			}
		})
	}
}

func TestDecodeFlowDef_Truncated(t *testing.T) {
	if _, err := DecodeFlowDef(make([]uint64, 12), 32); !errors.Is(err, pkg.ErrTruncatedRecord) {
		t.Errorf("DecodeFlowDef() error = %v, want ErrTruncatedRecord", err)
	}
}

// =============================================================================
// Configuration Tests
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"default", func(*Config) {}, true},
		{"64-bit", func(c *Config) { c.WordWidth = 64 }, true},
		{"16-bit", func(c *Config) { c.WordWidth = 16 }, false},
		{"negative timeout", func(c *Config) { c.Timeout = -1 }, false},
		{"shared control", func(c *Config) { c.Layout.Shaper = c.Layout.TxControl }, false},
		{"window overlap", func(c *Config) { c.Layout.FlowDefData = 20 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if !tt.ok && !errors.Is(err, pkg.ErrInvalidGeometry) {
				t.Errorf("Validate() error = %v, want ErrInvalidGeometry", err)
			}
		})
	}
}

func TestShaperSetting(t *testing.T) {
	tests := []struct {
		name        string
		mbps        float64
		ps          uint64
		whole, frac uint64
		wantErr     error
	}{
		{"half byte per clock", 1000, 4000, 0, 0x8000, nil},
		{"whole bytes", 10000, 4000, 5, 0, nil},
		{"fraction", 100, 4000, 0, 0xCCC, nil},
		{"zero", 0, 4000, 0, 0, nil},
		{"negative", -1, 4000, 0, 0, pkg.ErrInvalidValue},
		{"nan", math.NaN(), 4000, 0, 0, pkg.ErrInvalidValue},
		{"no clock", 100, 0, 0, 0, pkg.ErrInvalidGeometry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			whole, frac, err := ShaperSetting(tt.mbps, tt.ps)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ShaperSetting() error = %v, want %v", err, tt.wantErr)
			}
			if whole != tt.whole || frac != tt.frac {
				t.Errorf("ShaperSetting() = %d, 0x%x; want %d, 0x%x", whole, frac, tt.whole, tt.frac)
			}
		})
	}
}

// =============================================================================
// Generator Tests
// =============================================================================

func TestGenerator_StartRequiresFlow(t *testing.T) {
	space, _, g := newGenerator(t)
	if err := g.Start(); !errors.Is(err, ErrFlowRAMEmpty) {
		t.Fatalf("Start() error = %v, want ErrFlowRAMEmpty", err)
	}
	if space.Peek(DefaultLayout().TxControl)&1 != 0 {
		t.Error("transmit set with empty flow RAM")
	}

	if _, err := g.AddFlowDef(testFlow); err != nil {
		t.Fatalf("AddFlowDef() error = %v", err)
	}
	if err := g.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if on, err := g.Transmitting(); err != nil || !on {
		t.Errorf("Transmitting() = %v, %v; want true", on, err)
	}
	if err := g.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if on, _ := g.Transmitting(); on {
		t.Error("still transmitting after Stop")
	}
}

func TestGenerator_AddFlowDefs(t *testing.T) {
	space, m, g := newGenerator(t)
	l := DefaultLayout()

	for want := uint32(0); want < 3; want++ {
		f := testFlow
		f.IPID = uint16(want)
		id, err := g.AddFlowDef(f)
		if err != nil {
			t.Fatalf("AddFlowDef() error = %v", err)
		}
		if id != want {
			t.Errorf("AddFlowDef() id = %d, want %d", id, want)
		}
		if err := g.Start(); err != nil {
			t.Fatal(err)
		}
	}

	// The last add stopped the generator again before Start
	if m.flowCount() != 3 {
		t.Errorf("model holds %d flows, want 3", m.flowCount())
	}
	if ctrl := space.Peek(l.FlowDefCtrl); ctrl&1 != 0 || ctrl>>16&0xFFF != 2 {
		t.Errorf("flow def control = 0x%x, want last id 2 and write strobe low", ctrl)
	}
	if n, err := g.NumFlows(); err != nil || n != 3 {
		t.Errorf("NumFlows() = %d, %v; want 3", n, err)
	}

	staged, err := g.StagedFlowDef()
	if err != nil {
		t.Fatalf("StagedFlowDef() error = %v", err)
	}
	if staged.IPID != 2 {
		t.Errorf("StagedFlowDef().IPID = %d, want 2", staged.IPID)
	}

	stored, err := DecodeFlowDef(m.flows[1], 32)
	if err != nil || stored.IPID != 1 {
		t.Errorf("flow 1 = %+v, %v", stored, err)
	}
}

func TestGenerator_AddFlowDefStopsTransmit(t *testing.T) {
	space, _, g := newGenerator(t)
	if _, err := g.AddFlowDef(testFlow); err != nil {
		t.Fatal(err)
	}
	if err := g.Start(); err != nil {
		t.Fatal(err)
	}
	if _, err := g.AddFlowDef(testFlow); err != nil {
		t.Fatal(err)
	}
	if space.Peek(DefaultLayout().TxControl)&1 != 0 {
		t.Error("AddFlowDef() left the generator transmitting")
	}
}

func TestGenerator_ClearFlowDefs(t *testing.T) {
	_, _, g := newGenerator(t)
	for range 2 {
		if _, err := g.AddFlowDef(testFlow); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.ClearFlowDefs(); err != nil {
		t.Fatalf("ClearFlowDefs() error = %v", err)
	}
	if n, _ := g.NumFlows(); n != 0 {
		t.Errorf("NumFlows() = %d after clear", n)
	}
	if err := g.Start(); !errors.Is(err, ErrFlowRAMEmpty) {
		t.Errorf("Start() after clear = %v, want ErrFlowRAMEmpty", err)
	}
	if id, err := g.AddFlowDef(testFlow); err != nil || id != 0 {
		t.Errorf("AddFlowDef() after clear = %d, %v; want 0", id, err)
	}
}

func TestGenerator_FlowRAMFull(t *testing.T) {
	space, _, g := newGenerator(t)
	if _, err := g.AddFlowDef(testFlow); err != nil {
		t.Fatal(err)
	}
	space.Poke(DefaultLayout().FlowDefCtrl, 0xFFF<<16)

	if _, err := g.AddFlowDef(testFlow); !errors.Is(err, ErrFlowRAMFull) {
		t.Errorf("AddFlowDef() error = %v, want ErrFlowRAMFull", err)
	}
}

func TestGenerator_AddFlowDefInvalid(t *testing.T) {
	space, _, g := newGenerator(t)
	f := testFlow
	f.IPIHL = 20
	if _, err := g.AddFlowDef(f); !errors.Is(err, pkg.ErrInvalidValue) {
		t.Fatalf("AddFlowDef() error = %v, want ErrInvalidValue", err)
	}
	if _, writes := space.Stats(); writes != 0 {
		t.Errorf("invalid flow caused %d bus writes", writes)
	}
}

func TestGenerator_TxMode(t *testing.T) {
	space, _, g := newGenerator(t)
	tx := DefaultLayout().TxControl

	if err := g.SetFiniteTx(1000); err != nil {
		t.Fatalf("SetFiniteTx() error = %v", err)
	}
	if got, want := space.Peek(tx), uint64(1000<<4|1<<1); got != want {
		t.Errorf("tx control = 0x%x, want 0x%x", got, want)
	}
	if err := g.SetFiniteTx(1 << 28); !errors.Is(err, pkg.ErrInvalidValue) {
		t.Errorf("SetFiniteTx(1<<28) error = %v, want ErrInvalidValue", err)
	}
	if err := g.SetIndefiniteTx(); err != nil {
		t.Fatalf("SetIndefiniteTx() error = %v", err)
	}
	if space.Peek(tx)&2 != 0 {
		t.Error("finite_tx still set")
	}
}

func TestGenerator_Rate(t *testing.T) {
	space, _, g := newGenerator(t)

	if ps, err := g.ClockPeriodPs(); err != nil || ps != clockPs {
		t.Errorf("ClockPeriodPs() = %d, %v", ps, err)
	}
	if err := g.SetRateMbps(1000); err != nil {
		t.Fatalf("SetRateMbps() error = %v", err)
	}
	if got := space.Peek(DefaultLayout().Shaper); got != 0x8000 {
		t.Errorf("shaper = 0x%x, want 0x8000", got)
	}
	if rate, err := g.RateMbps(); err != nil || math.Abs(rate-1000) > 1e-9 {
		t.Errorf("RateMbps() = %v, %v; want 1000", rate, err)
	}

	if err := g.SetRateMbps(10000); err != nil {
		t.Fatalf("SetRateMbps(10000) error = %v", err)
	}
	if got := space.Peek(DefaultLayout().Shaper); got != 5<<16 {
		t.Errorf("shaper = 0x%x, want 0x50000", got)
	}
}

func TestGenerator_RateOutOfRange(t *testing.T) {
	_, _, g := newGenerator(t)
	// 40 Gb/s at 250 MHz is 20 bytes per clock
	if err := g.SetRateMbps(40000); !errors.Is(err, pkg.ErrInvalidValue) {
		t.Errorf("SetRateMbps(40000) error = %v, want ErrInvalidValue", err)
	}
}

func TestGenerator_Counters(t *testing.T) {
	_, _, g := newGenerator(t)
	for range 3 {
		if _, err := g.AddFlowDef(testFlow); err != nil {
			t.Fatal(err)
		}
	}

	gen, err := g.GeneratorCounters()
	if err != nil {
		t.Fatalf("GeneratorCounters() error = %v", err)
	}
	if gen.Packets != 0x1_0000_0002 || gen.Bytes != 0x3_0000_0004 {
		t.Errorf("GeneratorCounters() = %+v", gen)
	}

	c, err := g.FlowCounters(1)
	if err != nil {
		t.Fatalf("FlowCounters(1) error = %v", err)
	}
	if p, b := flowCounts(1); c.Packets != p || c.Bytes != b {
		t.Errorf("FlowCounters(1) = %+v, want %d/%d", c, p, b)
	}

	all, err := g.AllFlowCounters()
	if err != nil {
		t.Fatalf("AllFlowCounters() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("AllFlowCounters() = %d flows, want 3", len(all))
	}
	for i, c := range all {
		if p, b := flowCounts(uint64(i)); c.Packets != p || c.Bytes != b {
			t.Errorf("flow %d = %+v, want %d/%d", i, c, p, b)
		}
	}
}

func TestGenerator_CounterTimeout(t *testing.T) {
	_, m, g := newGenerator(t)
	m.stuckBusy = true

	if _, err := g.GeneratorCounters(); !errors.Is(err, pkg.ErrOperationTimeout) {
		t.Errorf("GeneratorCounters() error = %v, want ErrOperationTimeout", err)
	}
}

func TestGenerator_TransportError(t *testing.T) {
	space, _, g := newGenerator(t)
	space.Fault(DefaultLayout().TxControl, errors.New("bus stall"))

	if err := g.Stop(); !errors.Is(err, pkg.ErrTransport) {
		t.Errorf("Stop() error = %v, want ErrTransport", err)
	}
	if _, err := g.AddFlowDef(testFlow); !errors.Is(err, pkg.ErrTransport) {
		t.Errorf("AddFlowDef() error = %v, want ErrTransport", err)
	}
}
