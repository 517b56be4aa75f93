// Package bitfield reads and writes named bit ranges of register words.
//
// A [Spec] names a contiguous range of bits within one register. [Get]
// extracts a field; [Set] replaces it with a read-modify-write that keeps
// every other bit of the register intact. A [Map] groups the fields of one
// register block so drivers can look them up by name:
//
//	ctrl, _ := bitfield.NewMap(32,
//	    bitfield.Bit("rd_flag", 0, 0),
//	    bitfield.Bit("wr_flag", 0, 1),
//	    bitfield.Bit("entry_in_use", 0, 31),
//	    bitfield.Word("entry_id", 1, 32),
//	)
//	err := ctrl.Set(bus, "entry_id", 5)
package bitfield
