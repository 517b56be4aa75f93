// Package mem provides an in-process register space implementing
// [github.com/ardnew/softreg/transport.Transport].
//
// A [Space] stands in for an FPGA register block in tests and simulations.
// Host-side accesses go through ReadWord and WriteWord and are counted;
// behavioural device models attach with [Space.OnWrite] and update
// registers from the device side with [Space.Peek], [Space.Poke] and
// [Space.CompareAndSwap], which bypass hooks, counters and faults.
//
// # Fault Injection
//
// [Space.Fault] makes accesses to one address fail, exercising the
// transport error paths of drivers:
//
//	space.Fault(0x10, errors.New("bus timeout"))
//	defer space.Fault(0x10, nil)
package mem
