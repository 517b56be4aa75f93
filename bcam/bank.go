package bcam

import (
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/codec"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// ErrUnknownTable indicates a lookup of a table name not in the bank.
var ErrUnknownTable = errors.New("bcam: unknown table")

// Table names one CAM instance of a bank and its base word address.
//
// A zero Geometry selects the bank template's. A zero WordWidth within a
// table geometry selects the template's word width, since every table of a
// bank shares one bus. A nil Format selects the template's.
type Table struct {
	Name     string
	Base     uint32
	Geometry Geometry
	Format   *Format
}

// Config derives the configuration of t from the bank template tmpl.
func (t Table) Config(tmpl Config) Config {
	c := tmpl
	c.Name, c.Base = t.Name, t.Base
	if t.Geometry != (Geometry{}) {
		c.Geometry = t.Geometry
		if c.Geometry.WordWidth == 0 {
			c.Geometry.WordWidth = tmpl.Geometry.WordWidth
		}
	}
	if t.Format != nil {
		c.Format = t.Format
	}
	return c
}

func vnp4(key, aid, params uint) Geometry {
	return Geometry{KeyBits: key, ActionIDBits: aid, ActionParamBits: params, NumRows: 32}
}

// VNP4Tables lists the lookup tables of the Vitis Networking P4 router with
// their row geometries and named sub-fields.
var VNP4Tables = []Table{
	{
		Name: "intf_map", Base: 0x2000, Geometry: vnp4(10, 2, 46),
		Format: MustFormat(
			[]codec.FieldDef{{Name: "ingress_port", Width: 10}},
			[]codec.FieldDef{{Name: "vrf_id", Width: 32}, {Name: "vlan_id", Width: 12}}),
	},
	{
		Name: "lfib", Base: 0x4000, Geometry: vnp4(20, 3, 161),
		Format: MustFormat(
			[]codec.FieldDef{{Name: "mpls_label", Width: 20}},
			[]codec.FieldDef{
				{Name: "mpls_label", Width: 20},
				{Name: "mac_sa", Width: 48},
				{Name: "mac_da", Width: 48},
				{Name: "vrf_id", Width: 32},
				{Name: "egress_port", Width: 10},
			}),
	},
	{
		Name: "ipv4_fib", Base: 0x6000, Geometry: vnp4(64, 3, 149),
		Format: MustFormat(
			[]codec.FieldDef{{Name: "ip_da", Width: 32}, {Name: "vrf_id", Width: 32}},
			[]codec.FieldDef{
				{Name: "mac_sa", Width: 48},
				{Name: "mac_da", Width: 48},
				{Name: "egress_port", Width: 10},
			}),
	},
	{
		Name: "cmp_ipv4_fib", Base: 0x8000, Geometry: vnp4(74, 2, 14),
		Format: MustFormat(
			[]codec.FieldDef{
				{Name: "ingress_port", Width: 10},
				{Name: "ip_da", Width: 32},
				{Name: "vrf", Width: 32},
			},
			[]codec.FieldDef{{Name: "vlan_id", Width: 12}}),
	},
	{
		Name: "cmp_mac_fib", Base: 0xA000, Geometry: vnp4(58, 2, 14),
		Format: MustFormat(
			[]codec.FieldDef{{Name: "ingress_port", Width: 10}, {Name: "mac_da", Width: 48}},
			[]codec.FieldDef{{Name: "vlan_id", Width: 12}}),
	},
	{
		Name: "vlan_map", Base: 0xC000, Geometry: vnp4(12, 2, 12),
		Format: MustFormat(
			[]codec.FieldDef{{Name: "vlan_id", Width: 12}},
			[]codec.FieldDef{{Name: "egress_port", Width: 10}}),
	},
}

// Bank is a set of CAM instances sharing one register map on one bus,
// addressed by table name.
type Bank struct {
	names  []string
	tables map[string]*Client
}

// NewBank creates a client per table from the template cfg, each configured
// by [Table.Config].
func NewBank(t transport.Transport, cfg Config, tables ...Table) (*Bank, error) {
	b := &Bank{tables: make(map[string]*Client, len(tables))}
	for _, tbl := range tables {
		if _, dup := b.tables[tbl.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate table %q", pkg.ErrInvalidGeometry, tbl.Name)
		}
		client, err := New(t, tbl.Config(cfg))
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", tbl.Name, err)
		}
		b.names = append(b.names, tbl.Name)
		b.tables[tbl.Name] = client
	}
	return b, nil
}

// Names returns the table names in construction order.
func (b *Bank) Names() []string {
	return append([]string(nil), b.names...)
}

// Table returns the client of the named table.
func (b *Bank) Table(name string) (*Client, error) {
	c, ok := b.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return c, nil
}

// SetTimeout sets the handshake budget of every table.
func (b *Bank) SetTimeout(d time.Duration) {
	for _, c := range b.tables {
		c.SetTimeout(d)
	}
}

// ResetAll resets every table, continuing past failures.
func (b *Bank) ResetAll() error {
	var result *multierror.Error
	for _, name := range b.names {
		if err := b.tables[name].Reset(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
