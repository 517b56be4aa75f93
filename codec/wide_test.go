package codec

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ardnew/softreg/pkg"
)

func hexInt(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		t.Fatalf("bad hex %q", s)
	}
	return v
}

func TestWideWidths(t *testing.T) {
	tests := []struct {
		width uint
		want  []uint
	}{
		{0, nil},
		{1, []uint{1}},
		{64, []uint{64}},
		{74, []uint{10, 64}},
		{161, []uint{33, 64, 64}},
		{192, []uint{64, 64, 64}},
	}

	for _, tt := range tests {
		got := WideWidths(tt.width)
		if len(got) != len(tt.want) {
			t.Errorf("WideWidths(%d) = %v, want %v", tt.width, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("WideWidths(%d) = %v, want %v", tt.width, got, tt.want)
				break
			}
		}
	}
}

func TestWide_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value string
		width uint
		word  uint
	}{
		{"narrow", "3ff", 10, 32},
		{"74-bit key", "3ff00000000deadbeef", 74, 32},
		{"161-bit value", "1aabbccddeeff00112233445566778899aabbccdd", 161, 32},
		{"161-bit value in 64-bit words", "1aabbccddeeff00112233445566778899aabbccdd", 161, 64},
		{"zero", "0", 130, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := hexInt(t, tt.value)
			fields, err := Wide(v, tt.width)
			if err != nil {
				t.Fatalf("Wide() error = %v", err)
			}
			words, err := Pack(fields, tt.word)
			if err != nil {
				t.Fatalf("Pack() error = %v", err)
			}
			if want := int((tt.width + tt.word - 1) / tt.word); len(words) != want {
				t.Errorf("len(words) = %d, want %d", len(words), want)
			}
			widths := WideWidths(tt.width)
			values, err := Unpack(words, widths, tt.word)
			if err != nil {
				t.Fatalf("Unpack() error = %v", err)
			}
			if got := Join(values, widths); got.Cmp(v) != 0 {
				t.Errorf("Join() = 0x%x, want 0x%x", got, v)
			}
		})
	}
}

func TestWide_MSBFirst(t *testing.T) {
	// 74 bits: 10 high bits all set, 64 low bits zero
	v := new(big.Int).Lsh(big.NewInt(0x3FF), 64)
	fields, err := Wide(v, 74)
	if err != nil {
		t.Fatalf("Wide() error = %v", err)
	}
	words, err := Pack(fields, 32)
	if err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
	want := []uint64{0xFFC0_0000, 0, 0}
	if !equalWords(words, want) {
		t.Errorf("words = %x, want %x", words, want)
	}
}

func TestWide_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value *big.Int
		width uint
	}{
		{"too wide", new(big.Int).Lsh(big.NewInt(1), 74), 74},
		{"negative", big.NewInt(-1), 64},
		{"zero width", big.NewInt(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Wide(tt.value, tt.width); !errors.Is(err, pkg.ErrInvalidValue) {
				t.Errorf("Wide() error = %v, want ErrInvalidValue", err)
			}
		})
	}

	if f, err := Wide(nil, 8); err != nil || len(f) != 1 || f[0].Value != 0 {
		t.Errorf("Wide(nil) = %v, %v", f, err)
	}
}

func TestLayout_JoinSplit(t *testing.T) {
	l := MustLayout(
		FieldDef{"ingress_port", 10},
		FieldDef{"ip_da", 32},
		FieldDef{"vrf", 32},
	)

	v, err := l.JoinNamed(map[string]uint64{"ingress_port": 0x3FF, "ip_da": 0xC0A80001, "vrf": 7})
	if err != nil {
		t.Fatalf("JoinNamed() error = %v", err)
	}
	if want := hexInt(t, "3ffc0a8000100000007"); v.Cmp(want) != 0 {
		t.Errorf("JoinNamed() = 0x%x, want 0x%x", v, want)
	}

	named, err := l.SplitNamed(v)
	if err != nil {
		t.Fatalf("SplitNamed() error = %v", err)
	}
	if named["ingress_port"] != 0x3FF || named["ip_da"] != 0xC0A80001 || named["vrf"] != 7 {
		t.Errorf("SplitNamed() = %v", named)
	}

	r := l.Reversed()
	if f := r.Fields(); f[0].Name != "vrf" || f[2].Name != "ingress_port" {
		t.Errorf("Reversed() = %v", f)
	}
}

func TestLayout_JoinErrors(t *testing.T) {
	l := MustLayout(FieldDef{"a", 4}, FieldDef{"b", 4})

	tests := []struct {
		name   string
		values map[string]uint64
		want   error
	}{
		{"missing", map[string]uint64{"a": 1}, pkg.ErrInvalidValue},
		{"unknown", map[string]uint64{"a": 1, "b": 2, "c": 3}, pkg.ErrUnknownField},
		{"too wide", map[string]uint64{"a": 0x10, "b": 0}, pkg.ErrInvalidValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.JoinNamed(tt.values); !errors.Is(err, tt.want) {
				t.Errorf("JoinNamed() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := l.Split(big.NewInt(0x100)); !errors.Is(err, pkg.ErrInvalidValue) {
		t.Errorf("Split() error = %v, want ErrInvalidValue", err)
	}
}
