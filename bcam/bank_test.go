package bcam_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/bcam"
	"github.com/ardnew/softreg/bcam/bcamsim"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport/mem"
)

func TestBank_VNP4(t *testing.T) {
	space, err := mem.New(0xC000+0x100, 32)
	if err != nil {
		t.Fatalf("mem.New: %v", err)
	}

	tmpl := bcam.DefaultConfig(testGeometry)
	sims := make(map[string]*bcamsim.Sim)
	for _, tbl := range bcam.VNP4Tables {
		sim, err := bcamsim.New(space, tbl.Config(tmpl))
		if err != nil {
			t.Fatalf("bcamsim.New(%s): %v", tbl.Name, err)
		}
		sims[tbl.Name] = sim
	}

	bank, err := bcam.NewBank(space, tmpl, bcam.VNP4Tables...)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	names := bank.Names()
	if len(names) != 6 || names[0] != "intf_map" || names[5] != "vlan_map" {
		t.Errorf("Names() = %v", names)
	}

	lfib, err := bank.Table("lfib")
	if err != nil {
		t.Fatalf("Table(lfib) error = %v", err)
	}
	if lfib.Name() != "lfib" || lfib.Config().Base != 0x4000 {
		t.Errorf("lfib client = %s @ 0x%x", lfib.Name(), lfib.Config().Base)
	}

	row := bcam.Row{ID: 1, Key: bcam.Uint(0x2A), ActionID: 3, ActionParams: bcam.Uint(0x1234)}
	if err := lfib.WriteRow(row); err != nil {
		t.Fatalf("WriteRow() error = %v", err)
	}

	// Only the addressed instance holds the row
	for name, sim := range sims {
		want := 0
		if name == "lfib" {
			want = 1
		}
		if sim.Len() != want {
			t.Errorf("%s holds %d rows, want %d", name, sim.Len(), want)
		}
	}
	if got, ok := sims["lfib"].Row(1); !ok || !got.Equal(row) {
		t.Errorf("lfib row 1 = %v, %v", got, ok)
	}

	bank.SetTimeout(time.Second)
	if err := bank.ResetAll(); err != nil {
		t.Fatalf("ResetAll() error = %v", err)
	}
	if sims["lfib"].Len() != 0 {
		t.Error("lfib not reset")
	}

	if _, err := bank.Table("mpls"); !errors.Is(err, bcam.ErrUnknownTable) {
		t.Errorf("Table(mpls) error = %v, want ErrUnknownTable", err)
	}
}

func TestBank_VNP4Geometries(t *testing.T) {
	space, err := mem.New(0xC000+0x100, 32)
	if err != nil {
		t.Fatalf("mem.New: %v", err)
	}
	tmpl := bcam.DefaultConfig(testGeometry)
	sims := make(map[string]*bcamsim.Sim)
	for _, tbl := range bcam.VNP4Tables {
		sim, err := bcamsim.New(space, tbl.Config(tmpl))
		if err != nil {
			t.Fatalf("bcamsim.New(%s): %v", tbl.Name, err)
		}
		sims[tbl.Name] = sim
	}
	bank, err := bcam.NewBank(space, tmpl, bcam.VNP4Tables...)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}

	tests := []struct {
		name                string
		key, aid, params    uint
		keyWords, rowWords  int
		keyFields, paramLen int
	}{
		{"intf_map", 10, 2, 46, 1, 4, 1, 2},
		{"lfib", 20, 3, 161, 1, 8, 1, 5},
		{"ipv4_fib", 64, 3, 149, 2, 9, 2, 3},
		{"cmp_ipv4_fib", 74, 2, 14, 3, 7, 3, 1},
		{"cmp_mac_fib", 58, 2, 14, 2, 5, 2, 1},
		{"vlan_map", 12, 2, 12, 1, 3, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := bank.Table(tt.name)
			if err != nil {
				t.Fatalf("Table() error = %v", err)
			}
			g := c.Geometry()
			if g.KeyBits != tt.key || g.ActionIDBits != tt.aid || g.ActionParamBits != tt.params {
				t.Errorf("geometry = %d/%d/%d, want %d/%d/%d",
					g.KeyBits, g.ActionIDBits, g.ActionParamBits, tt.key, tt.aid, tt.params)
			}
			if g.NumRows != 32 || g.WordWidth != 32 {
				t.Errorf("rows %d, width %d; want 32, 32", g.NumRows, g.WordWidth)
			}
			if g.KeyWords() != tt.keyWords || g.RowWords() != tt.rowWords {
				t.Errorf("KeyWords() = %d, RowWords() = %d; want %d, %d",
					g.KeyWords(), g.RowWords(), tt.keyWords, tt.rowWords)
			}
			format := c.Config().Format
			if format == nil || len(format.KeyFields()) != tt.keyFields || len(format.ParamFields()) != tt.paramLen {
				t.Fatalf("format = %v", format)
			}

			// Widest key and parameters the table holds
			row := bcam.Row{
				ID:           31,
				Key:          new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), tt.key), big.NewInt(1)),
				ActionID:     1<<tt.aid - 1,
				ActionParams: new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), tt.params), big.NewInt(1)),
			}
			if err := c.WriteRow(row); err != nil {
				t.Fatalf("WriteRow() error = %v", err)
			}
			got, err := c.ReadRow(31)
			if err != nil || !got.Equal(row) {
				t.Errorf("ReadRow() = %v, %v; want %v", got, err, row)
			}
			if stored, ok := sims[tt.name].Row(31); !ok || !stored.Equal(row) {
				t.Errorf("model row = %v, %v", stored, ok)
			}
		})
	}
}

func TestTable_Config(t *testing.T) {
	tmpl := bcam.DefaultConfig(testGeometry)
	tmpl.Geometry.WordWidth = 64

	plain := bcam.Table{Name: "a", Base: 0x40}.Config(tmpl)
	if plain.Name != "a" || plain.Base != 0x40 || plain.Geometry != tmpl.Geometry || plain.Format != nil {
		t.Errorf("zero table geometry config = %+v", plain)
	}

	lfib := bcam.VNP4Tables[1].Config(tmpl)
	if lfib.Geometry.ActionParamBits != 161 || lfib.Geometry.WordWidth != 64 {
		t.Errorf("lfib geometry = %+v, want 161-bit params on 64-bit words", lfib.Geometry)
	}
	if lfib.Format != bcam.VNP4Tables[1].Format {
		t.Error("lfib format not applied")
	}
	if err := lfib.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestNewBank_Errors(t *testing.T) {
	space, _ := mem.New(0x100, 32)
	tmpl := bcam.DefaultConfig(testGeometry)

	_, err := bcam.NewBank(space, tmpl, bcam.Table{Name: "a"}, bcam.Table{Name: "a", Base: 0x40})
	if !errors.Is(err, pkg.ErrInvalidGeometry) {
		t.Errorf("duplicate table error = %v, want ErrInvalidGeometry", err)
	}

	tmpl.Geometry.NumRows = 0
	_, err = bcam.NewBank(space, tmpl, bcam.Table{Name: "a"})
	if !errors.Is(err, pkg.ErrInvalidGeometry) {
		t.Errorf("invalid template error = %v, want ErrInvalidGeometry", err)
	}
}

func TestBank_ResetAllAggregates(t *testing.T) {
	space, _ := mem.New(0x200, 32)
	tmpl := bcam.DefaultConfig(testGeometry)
	tmpl.Timeout = time.Millisecond
	tables := []bcam.Table{{Name: "a", Base: 0}, {Name: "b", Base: 0x80}, {Name: "c", Base: 0x100}}

	// Only table b has a responding model
	cfg := tmpl
	cfg.Name, cfg.Base = "b", 0x80
	if _, err := bcamsim.New(space, cfg); err != nil {
		t.Fatalf("bcamsim.New: %v", err)
	}

	bank, err := bcam.NewBank(space, tmpl, tables...)
	if err != nil {
		t.Fatalf("NewBank() error = %v", err)
	}
	var merr *multierror.Error
	if err := bank.ResetAll(); !errors.As(err, &merr) {
		t.Fatalf("ResetAll() error = %v, want aggregated error", err)
	}
	if len(merr.Errors) != 2 {
		t.Fatalf("ResetAll() failures = %d, want 2", len(merr.Errors))
	}
	for _, e := range merr.Errors {
		if !errors.Is(e, pkg.ErrOperationTimeout) {
			t.Errorf("failure %v, want ErrOperationTimeout", e)
		}
	}
}
