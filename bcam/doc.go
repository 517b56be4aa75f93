// Package bcam drives the rows of hardware binary CAM lookup tables.
//
// A CAM instance exposes a small register block: a control register with
// read, write and reset request bits plus an entry-in-use bit, an entry
// selector, lookup statistics, and a data window holding the payload of
// the selected row. Row operations select a row, run a request/poll
// handshake, and move the payload through the data window:
//
//	client, err := bcam.New(bus, bcam.DefaultConfig(bcam.Geometry{
//	    KeyBits:         10,
//	    ActionIDBits:    2,
//	    ActionParamBits: 46,
//	    NumRows:         32,
//	    WordWidth:       32,
//	}))
//	err = client.WriteRow(bcam.Row{ID: 0, Key: bcam.Uint(0x3FF), ActionID: 1, ActionParams: bcam.Uint(1)})
//	row, err := client.ReadRow(0)
//	err = client.ClearRow(0)
//
// # Row Payload
//
// The data window holds a key region of ceil(KeyBits/W) words, a mask
// region of the same size reserved for ternary tables, and a value region
// of ceil((ActionIDBits+ActionParamBits)/W) words. The key and the
// composite value params<<ActionIDBits | actionID are packed MSB-first
// with [github.com/ardnew/softreg/codec]. Keys and parameters are
// [math/big.Int] values and may be wider than 64 bits.
//
// Both regions are left-aligned: the most significant bit of the key is
// bit W-1 of the first key word and any padding sits in the low bits of
// the last word. Some drivers for the same block right-align the key
// image instead, putting the padding in the first word. Confirm the
// alignment against the RTL before driving real hardware; a 10-bit key
// 0x3FF reads back as 0xFFC00000 here and as 0x000003FF right-aligned.
//
// # Named Fields
//
// A [Format] names the sub-fields of a table's key and parameters. Key
// fields concatenate with the first most significant; parameters
// concatenate in reverse so the first declared parameter lands in the low
// bits. [Client.LoadEntries] and [Client.ReadEntry] move [Entry] values
// through the configured format.
//
// # Occupancy
//
// Writing requires a free row and fails with
// [github.com/ardnew/softreg/pkg.ErrAlreadyOccupied] otherwise; clearing
// requires an occupied row and fails with
// [github.com/ardnew/softreg/pkg.ErrNotOccupied]. Both checks happen before
// the payload or write request is issued.
//
// # Banks
//
// A [Bank] groups several instances that share one register map at
// different base offsets, such as the [VNP4Tables] of a P4 router. Each
// [Table] may carry its own geometry and format.
package bcam
