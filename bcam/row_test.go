package bcam_test

import (
	"math/big"
	"testing"

	"github.com/ardnew/softreg/bcam"
)

func TestRow_Equal(t *testing.T) {
	base := bcam.Row{ID: 1, Key: bcam.Uint(0x10), ActionID: 2, ActionParams: bcam.Uint(0)}

	tests := []struct {
		name string
		row  bcam.Row
		want bool
	}{
		{"same values", bcam.Row{ID: 1, Key: big.NewInt(0x10), ActionID: 2, ActionParams: new(big.Int)}, true},
		{"nil params read as zero", bcam.Row{ID: 1, Key: bcam.Uint(0x10), ActionID: 2}, true},
		{"other key", bcam.Row{ID: 1, Key: bcam.Uint(0x11), ActionID: 2}, false},
		{"other id", bcam.Row{ID: 2, Key: bcam.Uint(0x10), ActionID: 2}, false},
		{"other action", bcam.Row{ID: 1, Key: bcam.Uint(0x10), ActionID: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.row); got != tt.want {
				t.Errorf("Equal(%v) = %v, want %v", tt.row, got, tt.want)
			}
		})
	}
}

func TestRow_String(t *testing.T) {
	r := bcam.Row{ID: 3, Key: new(big.Int).Lsh(big.NewInt(0x3FF), 64), ActionID: 1}
	want := "row 3: key=0x3ff0000000000000000 action=1 params=0x0"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
