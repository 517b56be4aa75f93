// Package bcamsim is a behavioural model of a TinyBCAM instance.
//
// A [Sim] attaches to a [github.com/ardnew/softreg/transport/mem.Space] and
// answers the read, write and reset requests a
// [github.com/ardnew/softreg/bcam.Client] issues, the way the RTL does:
//
//   - read: copies the selected row into the data window, reports its
//     occupancy in the entry-in-use bit and clears the read bit
//   - write: stores the data window into the selected row when
//     entry-in-use is set, deletes the row when it is clear, and clears
//     the write bit
//   - reset: deletes every row, zeroes the counters and clears the reset
//     bit
//
// [WithLatency] completes requests on a timer to exercise polling, and
// [WithStuck] never completes them to exercise timeouts. [Sim.Lookup]
// plays the data plane, updating the lookup statistics registers.
package bcamsim
