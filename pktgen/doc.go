// Package pktgen drives a network packet generator IP block.
//
// Flows are described by a [FlowDef], a 409-bit record of Ethernet, VLAN,
// MPLS and IPv4 header fields plus length and payload modes. The record is
// packed most significant field first by [FlowDefLayout] into the flow
// definition write registers (13 words at 32 bits) and committed to the
// flow RAM with a write-enable strobe:
//
//	gen, err := pktgen.New(bus, pktgen.DefaultConfig())
//	id, err := gen.AddFlowDef(pktgen.FlowDef{MACDA: 0x0200_0000_0001, ...})
//	err = gen.SetRateMbps(1000)
//	err = gen.SetFiniteTx(1_000_000)
//	err = gen.Start()
//
// The rate shaper takes bytes per clock as a 4-bit whole part and a 16-bit
// fraction, derived from the clock period the block reports.
//
// Transmit counters are 64 bits wide and read from low/high register pairs
// after a sample strobe; the driver waits for the sample busy bit to clear
// before reading.
package pktgen
