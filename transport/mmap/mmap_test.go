//go:build linux

package mmap

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardnew/softreg/pkg"
)

func backingFile(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "regs")
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpen_Errors(t *testing.T) {
	path := backingFile(t, 4096)
	tests := []struct {
		name   string
		path   string
		offset int64
		size   int
		width  uint
		want   error
	}{
		{"width 16", path, 0, 4096, 16, pkg.ErrInvalidValue},
		{"zero size", path, 0, 0, 32, pkg.ErrInvalidGeometry},
		{"ragged size", path, 0, 4092, 64, pkg.ErrInvalidGeometry},
		{"unaligned offset", path, 4, 4096, 32, pkg.ErrInvalidGeometry},
		{"missing file", path + ".absent", 0, 4096, 32, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(tt.path, tt.offset, tt.size, tt.width); !errors.Is(err, tt.want) {
				t.Errorf("Open() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegion_ReadWrite(t *testing.T) {
	tests := []struct {
		name  string
		width uint
		addr  uint32
		value uint64
	}{
		{"32-bit", 32, 0x10, 0xDEAD_BEEF},
		{"64-bit", 64, 0x10, 0x0123_4567_89AB_CDEF},
		{"last word", 32, 1023, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := backingFile(t, 4096)
			r, err := Open(path, 0, 4096, tt.width)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if want := 4096 / int(tt.width/8); r.Size() != want {
				t.Errorf("Size() = %d, want %d", r.Size(), want)
			}

			if err := r.WriteWord(tt.addr, tt.value); err != nil {
				t.Fatalf("WriteWord() error = %v", err)
			}
			got, err := r.ReadWord(tt.addr)
			if err != nil || got != tt.value {
				t.Errorf("ReadWord() = 0x%x, %v; want 0x%x", got, err, tt.value)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			// Stores reach the backing file in host byte order
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			off := int(tt.addr) * int(tt.width/8)
			var stored uint64
			if tt.width == 32 {
				stored = uint64(binary.NativeEndian.Uint32(data[off:]))
			} else {
				stored = binary.NativeEndian.Uint64(data[off:])
			}
			if stored != tt.value {
				t.Errorf("file word = 0x%x, want 0x%x", stored, tt.value)
			}
		})
	}
}

func TestRegion_Errors(t *testing.T) {
	r, err := Open(backingFile(t, 4096), 0, 4096, 32)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := r.ReadWord(1024); !errors.Is(err, ErrAddress) {
		t.Errorf("ReadWord(1024) error = %v, want ErrAddress", err)
	}
	if err := r.WriteWord(0, 1<<32); !errors.Is(err, pkg.ErrInvalidValue) {
		t.Errorf("WriteWord(1<<32) error = %v, want ErrInvalidValue", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := r.ReadWord(0); !errors.Is(err, ErrClosed) {
		t.Errorf("ReadWord() after Close = %v, want ErrClosed", err)
	}
}

func TestOpenUIO(t *testing.T) {
	sysfs := t.TempDir()
	old := SysfsUIOPath
	SysfsUIOPath = sysfs
	t.Cleanup(func() { SysfsUIOPath = old })

	mapDir := filepath.Join(sysfs, "uio0", "maps", "map0")
	if err := os.MkdirAll(mapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(mapDir, "size"), []byte("0x1000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	dev := filepath.Join(t.TempDir(), "uio0")
	if err := os.WriteFile(dev, make([]byte, 4096), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := OpenUIO(dev, 0, 32)
	if err != nil {
		t.Fatalf("OpenUIO() error = %v", err)
	}
	defer r.Close()
	if r.Size() != 1024 {
		t.Errorf("Size() = %d, want 1024", r.Size())
	}

	if _, err := OpenUIO(dev, 1, 32); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("OpenUIO(map1) error = %v, want ErrNotExist", err)
	}
}
