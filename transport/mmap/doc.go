//go:build linux

// Package mmap maps an FPGA register window into the process and exposes
// it as a [github.com/ardnew/softreg/transport.Transport].
//
// The window may come from /dev/mem at a physical base address, from a
// UIO device ([OpenUIO]) or from a regular file, which is useful for
// inspecting register dumps and for tests:
//
//	bus, err := mmap.Open("/dev/mem", 0xA000_0000, 0x10000, 32)
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
// Registers are accessed with single aligned atomic loads and stores so a
// word is never torn.
package mmap
