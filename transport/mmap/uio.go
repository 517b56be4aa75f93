//go:build linux

package mmap

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// SysfsUIOPath is the sysfs directory describing UIO devices.
var SysfsUIOPath = "/sys/class/uio"

// OpenUIO maps memory region index of the UIO device at dev (for example
// /dev/uio0). The window size is read from sysfs; UIO selects map N by
// an mmap offset of N pages.
func OpenUIO(dev string, index int, width uint) (*Region, error) {
	attr := filepath.Join(SysfsUIOPath, filepath.Base(dev), "maps",
		fmt.Sprintf("map%d", index), "size")
	size, err := readSysfsHex(attr, 64)
	if err != nil {
		return nil, fmt.Errorf("uio map %d size: %w", index, err)
	}
	return Open(dev, int64(index)*int64(os.Getpagesize()), int(size), width)
}

// readSysfsHex reads a hexadecimal value from a sysfs attribute file.
func readSysfsHex(path string, bitSize int) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimPrefix(strings.TrimSpace(string(data)), "0x")
	return strconv.ParseUint(s, 16, bitSize)
}
