package bcam

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/bitfield"
	"github.com/ardnew/softreg/handshake"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// Client drives the rows of one CAM instance.
//
// A Client holds no row state; every call observes hardware. It performs
// no locking: concurrent callers sharing one instance must serialize.
type Client struct {
	cfg  Config
	bus  transport.Transport
	regs *bitfield.Map
	log  *slog.Logger

	inUse bitfield.Spec
	rd    *handshake.Handshake
	wr    *handshake.Handshake
	rst   *handshake.Handshake
}

// New creates a client for the CAM described by cfg on t.
// Register addresses in cfg.Layout are relative to cfg.Base.
func New(t transport.Transport, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	regs, err := cfg.Layout.Fields(cfg.Geometry.WordWidth)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:  cfg,
		bus:  transport.NewWindow(t, cfg.Base),
		regs: regs,
		log:  pkg.Logger(pkg.ComponentTable).With(
			"table", cfg.Name,
			"base", fmt.Sprintf("0x%04x", cfg.Base)),
	}
	c.inUse = c.spec(FieldEntryInUse)
	c.rd = c.newHandshake(FieldReadFlag)
	c.wr = c.newHandshake(FieldWriteFlag)
	c.rst = c.newHandshake(FieldReset)

	c.log.Debug("client created",
		"rows", cfg.Geometry.NumRows,
		"row_words", cfg.Geometry.RowWords())
	return c, nil
}

func (c *Client) spec(name string) bitfield.Spec {
	s, err := c.regs.Spec(name)
	if err != nil {
		// Fields always registers every name
		panic(err)
	}
	return s
}

func (c *Client) newHandshake(flag string) *handshake.Handshake {
	return handshake.New(c.bus, c.spec(flag), c.cfg.Geometry.WordWidth, c.cfg.Timeout, c.cfg.Strategy)
}

// Name returns the instance name.
func (c *Client) Name() string { return c.cfg.Name }

// Config returns the client configuration.
func (c *Client) Config() Config { return c.cfg }

// Geometry returns the row geometry.
func (c *Client) Geometry() Geometry { return c.cfg.Geometry }

// SetTimeout sets the handshake budget for subsequent operations.
// A zero timeout selects [handshake.DefaultTimeout].
func (c *Client) SetTimeout(d time.Duration) {
	c.cfg.Timeout = d
	for _, h := range []*handshake.Handshake{c.rd, c.wr, c.rst} {
		h.Timeout = d
	}
}

// SetStrategy sets the poll pacing for subsequent operations.
func (c *Client) SetStrategy(s handshake.Strategy) {
	c.cfg.Strategy = s
	for _, h := range []*handshake.Handshake{c.rd, c.wr, c.rst} {
		h.Strategy = s
	}
}

// =============================================================================
// Row Operations
// =============================================================================

func (c *Client) checkIndex(id uint32) error {
	if id >= c.cfg.Geometry.NumRows {
		return fmt.Errorf("%w: %d (rows %d)", pkg.ErrRowIndexOutOfRange, id, c.cfg.Geometry.NumRows)
	}
	return nil
}

// load selects row id and runs a read handshake, leaving the row payload
// in the data registers and its occupancy in the control register.
func (c *Client) load(id uint32) error {
	if err := c.regs.Set(c.bus, FieldEntryID, uint64(id)); err != nil {
		return err
	}
	_, err := c.rd.Run()
	return err
}

func (c *Client) rowErr(op string, id uint32, err error) error {
	return fmt.Errorf("%s %s row %d: %w", c.cfg.Name, op, id, err)
}

// ReadRow reads row id back from hardware.
func (c *Client) ReadRow(id uint32) (Row, error) {
	if err := c.checkIndex(id); err != nil {
		return Row{}, err
	}
	if err := c.load(id); err != nil {
		return Row{}, c.rowErr("read", id, err)
	}

	g := c.cfg.Geometry
	keyWords := make([]uint64, g.KeyWords())
	if err := transport.ReadWords(c.bus, c.cfg.Layout.Data0, keyWords, c.cfg.Layout.Order); err != nil {
		return Row{}, c.rowErr("read", id, err)
	}
	valueWords := make([]uint64, g.ValueWords())
	if err := transport.ReadWords(c.bus, c.cfg.Layout.Data0+g.ValueOffset(), valueWords, c.cfg.Layout.Order); err != nil {
		return Row{}, c.rowErr("read", id, err)
	}

	row := Row{ID: id}
	var err error
	if row.Key, err = g.DecodeKey(keyWords); err != nil {
		return Row{}, c.rowErr("read", id, err)
	}
	if row.ActionID, row.ActionParams, err = g.DecodeValue(valueWords); err != nil {
		return Row{}, c.rowErr("read", id, err)
	}

	c.log.Debug("row read", "row", id)
	return row, nil
}

// WriteRow installs r into a free row.
//
// The row is first loaded to observe its occupancy; an occupied row fails
// with [pkg.ErrAlreadyOccupied] before any payload or write request reaches
// the bus.
func (c *Client) WriteRow(r Row) error {
	g := c.cfg.Geometry
	if err := g.CheckRow(r); err != nil {
		return err
	}
	if err := c.load(r.ID); err != nil {
		return c.rowErr("write", r.ID, err)
	}
	if err := handshake.RequireFree(c.bus, c.inUse); err != nil {
		return c.rowErr("write", r.ID, err)
	}

	key, err := g.EncodeKey(r.Key)
	if err != nil {
		return c.rowErr("write", r.ID, err)
	}
	value, err := g.EncodeValue(r.ActionID, r.ActionParams)
	if err != nil {
		return c.rowErr("write", r.ID, err)
	}
	if err := transport.WriteWords(c.bus, c.cfg.Layout.Data0, key, c.cfg.Layout.Order); err != nil {
		return c.rowErr("write", r.ID, err)
	}
	if err := transport.WriteWords(c.bus, c.cfg.Layout.Data0+g.ValueOffset(), value, c.cfg.Layout.Order); err != nil {
		return c.rowErr("write", r.ID, err)
	}

	if err := bitfield.Set(c.bus, c.inUse, 1, g.WordWidth); err != nil {
		return c.rowErr("write", r.ID, err)
	}
	res, err := c.wr.Run()
	if err != nil {
		return c.rowErr("write", r.ID, err)
	}

	c.log.Debug("row written",
		"row", r.ID,
		"key", "0x"+hex(r.Key),
		"polls", res.Polls)
	return nil
}

// ClearRow deletes an occupied row. A free row fails with
// [pkg.ErrNotOccupied].
func (c *Client) ClearRow(id uint32) error {
	if err := c.checkIndex(id); err != nil {
		return err
	}
	if err := c.load(id); err != nil {
		return c.rowErr("clear", id, err)
	}
	if err := handshake.RequireOccupied(c.bus, c.inUse); err != nil {
		return c.rowErr("clear", id, err)
	}

	if err := bitfield.Set(c.bus, c.inUse, 0, c.cfg.Geometry.WordWidth); err != nil {
		return c.rowErr("clear", id, err)
	}
	res, err := c.wr.Run()
	if err != nil {
		return c.rowErr("clear", id, err)
	}

	c.log.Debug("row cleared", "row", id, "polls", res.Polls)
	return nil
}

// Occupied reports whether row id is in use.
func (c *Client) Occupied(id uint32) (bool, error) {
	if err := c.checkIndex(id); err != nil {
		return false, err
	}
	if err := c.load(id); err != nil {
		return false, c.rowErr("query", id, err)
	}
	v, err := bitfield.Get(c.bus, c.inUse)
	if err != nil {
		return false, c.rowErr("query", id, err)
	}
	return v != 0, nil
}

// =============================================================================
// Table Operations
// =============================================================================

// Rows returns every occupied row in index order.
func (c *Client) Rows() ([]Row, error) {
	var rows []Row
	for id := range c.cfg.Geometry.NumRows {
		used, err := c.Occupied(id)
		if err != nil {
			return rows, err
		}
		if !used {
			continue
		}
		r, err := c.ReadRow(id)
		if err != nil {
			return rows, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// ClearAll deletes every occupied row. Free rows are skipped. Failures of
// individual rows do not stop the sweep and are returned together.
func (c *Client) ClearAll() error {
	var result *multierror.Error
	for id := range c.cfg.Geometry.NumRows {
		err := c.ClearRow(id)
		if err == nil || errors.Is(err, pkg.ErrNotOccupied) {
			continue
		}
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// LoadRows replaces the table contents with rows. The table is cleared
// first, then each row is written in order. Every failure is collected.
func (c *Client) LoadRows(rows []Row) error {
	var result *multierror.Error
	if err := c.ClearAll(); err != nil {
		result = multierror.Append(result, err)
	}
	failed := 0
	for _, r := range rows {
		if err := c.WriteRow(r); err != nil {
			result = multierror.Append(result, err)
			failed++
		}
	}

	c.log.Info("table loaded",
		"rows", len(rows)-failed,
		"failed", failed)
	return result.ErrorOrNil()
}

// LoadEntries replaces the table contents with entries composed through
// the configured [Format]. Entry i is written to row i. Entries that do not
// compose are reported together with write failures; the rest are written.
func (c *Client) LoadEntries(entries []Entry) error {
	f := c.cfg.Format
	if f == nil {
		return fmt.Errorf("%s: %w: no row format", c.cfg.Name, pkg.ErrInvalidGeometry)
	}
	if uint64(len(entries)) > uint64(c.cfg.Geometry.NumRows) {
		return fmt.Errorf("%s: %w: %d entries for %d rows",
			c.cfg.Name, pkg.ErrRowIndexOutOfRange, len(entries), c.cfg.Geometry.NumRows)
	}

	var result *multierror.Error
	rows := make([]Row, 0, len(entries))
	for i, e := range entries {
		r, err := f.Row(uint32(i), e)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", c.cfg.Name, err))
			continue
		}
		rows = append(rows, r)
	}
	if err := c.LoadRows(rows); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// ReadEntry reads row id and splits it through the configured [Format].
func (c *Client) ReadEntry(id uint32) (Entry, error) {
	f := c.cfg.Format
	if f == nil {
		return Entry{}, fmt.Errorf("%s: %w: no row format", c.cfg.Name, pkg.ErrInvalidGeometry)
	}
	r, err := c.ReadRow(id)
	if err != nil {
		return Entry{}, err
	}
	e, err := f.Entry(r)
	if err != nil {
		return Entry{}, c.rowErr("read", id, err)
	}
	return e, nil
}

// Reset clears every row through the hardware reset request.
func (c *Client) Reset() error {
	if _, err := c.rst.Run(); err != nil {
		return fmt.Errorf("%s reset: %w", c.cfg.Name, err)
	}
	c.log.Info("table reset")
	return nil
}

// Counters holds the lookup statistics of a CAM instance.
type Counters struct {
	Lookups uint64
	Hits    uint64
	Misses  uint64
}

// Counters reads the lookup statistics.
func (c *Client) Counters() (Counters, error) {
	var (
		cnt Counters
		err error
	)
	if cnt.Lookups, err = c.regs.Get(c.bus, FieldLookupCount); err != nil {
		return Counters{}, err
	}
	if cnt.Hits, err = c.regs.Get(c.bus, FieldHitCount); err != nil {
		return Counters{}, err
	}
	if cnt.Misses, err = c.regs.Get(c.bus, FieldMissCount); err != nil {
		return Counters{}, err
	}
	return cnt, nil
}

// EmulationMode returns the emulation mode register.
func (c *Client) EmulationMode() (uint64, error) {
	return c.regs.Get(c.bus, FieldEmulationMode)
}

// SetEmulationMode writes the emulation mode register.
func (c *Client) SetEmulationMode(mode uint64) error {
	return c.regs.Set(c.bus, FieldEmulationMode, mode)
}
