// Package transport defines the register bus abstraction for FPGA IP blocks.
//
// A [Transport] reads and writes single words of a word-addressed register
// space. It is the only collaborator the field accessors, the record codec
// and the table drivers need from the platform, so the same driver code runs
// against real hardware, a remote bus or an in-process simulation.
//
// # Interface Overview
//
//   - [Transport]: ReadWord / WriteWord of one register
//   - [MultiWord]: optional burst transfer of consecutive registers
//   - [ReadWords] / [WriteWords]: burst helpers that fall back to single-word
//     loops and apply a big- or little-endian word [Order]
//   - [Window]: per-device base offset on a shared bus
//
// # Implementations
//
//   - [github.com/ardnew/softreg/transport/mem]: in-process register space
//     with hooks for behavioural device models
//   - [github.com/ardnew/softreg/transport/fifo]: register bus over named
//     pipes between processes
//   - [github.com/ardnew/softreg/transport/mmap]: memory-mapped register
//     window on Linux (/dev/mem, /dev/uioN)
//
// # Implementing a Transport
//
//	type myBus struct{ regs []uint32 }
//
//	func (b *myBus) ReadWord(addr uint32) (uint64, error) {
//	    return uint64(b.regs[addr]), nil
//	}
//
//	func (b *myBus) WriteWord(addr uint32, v uint64) error {
//	    b.regs[addr] = uint32(v)
//	    return nil
//	}
//
// Errors returned by an implementation are propagated opaquely, wrapped
// with [github.com/ardnew/softreg/pkg.ErrTransport].
package transport
