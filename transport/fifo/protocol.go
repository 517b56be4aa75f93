package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardnew/softreg/pkg"
)

// FIFO names inside a bus directory.
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
)

// Message types. Requests flow host to device, responses device to host.
const (
	msgRead  = 0x01 // [addr u32][count u16]
	msgWrite = 0x02 // [addr u32][value u64]...
	msgData  = 0x03 // [value u64]...
	msgAck   = 0x04 // empty
	msgError = 0x05 // [code u8][text]
)

// Error codes carried by msgError.
const (
	codeGeneric      = 0x00
	codeInvalidValue = 0x01
)

const (
	headerSize = 3 // [type][len u16 LE]

	// MaxBurst is the largest number of words moved by one message.
	// Longer bursts are split.
	MaxBurst = 255

	maxPayload = 4 + MaxBurst*8
	maxMessage = headerSize + maxPayload

	pollInterval = 100 * time.Millisecond
)

// Errors.
var (
	// ErrNotConnected indicates a client or server used before it has
	// opened its FIFOs, or after Close.
	ErrNotConnected = errors.New("fifo: not connected")

	// ErrFIFOCreate indicates the bus directory or its FIFOs could not be
	// created.
	ErrFIFOCreate = errors.New("fifo: failed to create FIFO")

	// ErrFIFOOpen indicates a FIFO could not be opened.
	ErrFIFOOpen = errors.New("fifo: failed to open FIFO")

	// ErrProtocol indicates a malformed or unexpected message.
	ErrProtocol = errors.New("fifo: protocol error")

	// ErrRemote indicates the serving transport rejected a request.
	ErrRemote = errors.New("fifo: remote error")
)

type message struct {
	typ     byte
	payload []byte
}

// writeMessage sends one frame built in buf, which must hold maxMessage
// bytes.
func writeMessage(f *os.File, buf []byte, typ byte, payload []byte) error {
	if len(payload) > maxPayload {
		return fmt.Errorf("%w: payload of %d bytes", ErrProtocol, len(payload))
	}
	buf[0] = typ
	binary.LittleEndian.PutUint16(buf[1:headerSize], uint16(len(payload)))
	n := copy(buf[headerSize:], payload)
	_, err := f.Write(buf[:headerSize+n])
	return err
}

// readMessage reads one frame into buf. The returned payload aliases buf.
// A zero deadline polls until ctx is done; otherwise the read fails with
// a timeout once the deadline passes.
func readMessage(ctx context.Context, f *os.File, buf []byte, deadline time.Time) (message, error) {
	if err := readFull(ctx, f, buf[:headerSize], deadline); err != nil {
		return message{}, err
	}
	n := int(binary.LittleEndian.Uint16(buf[1:headerSize]))
	if n > maxPayload {
		return message{}, fmt.Errorf("%w: payload of %d bytes", ErrProtocol, n)
	}
	if err := readFull(ctx, f, buf[headerSize:headerSize+n], deadline); err != nil {
		return message{}, err
	}
	return message{typ: buf[0], payload: buf[headerSize : headerSize+n]}, nil
}

// readFull reads exactly len(buf) bytes, retrying on short poll timeouts
// so that cancellation of ctx is observed.
func readFull(ctx context.Context, f *os.File, buf []byte, deadline time.Time) error {
	total := 0
	for total < len(buf) {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := time.Now().Add(pollInterval)
		if !deadline.IsZero() && deadline.Before(d) {
			d = deadline
		}
		f.SetReadDeadline(d)
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				return err
			}
			if !deadline.IsZero() && !time.Now().Before(deadline) {
				return fmt.Errorf("%w: no response", pkg.ErrOperationTimeout)
			}
			continue
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}
	f.SetReadDeadline(time.Time{})
	return nil
}

func encodeRead(buf []byte, addr uint32, count int) []byte {
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(count))
	return buf[:6]
}

func decodeRead(p []byte) (addr uint32, count int, err error) {
	if len(p) != 6 {
		return 0, 0, fmt.Errorf("%w: read request of %d bytes", ErrProtocol, len(p))
	}
	count = int(binary.LittleEndian.Uint16(p[4:6]))
	if count == 0 || count > MaxBurst {
		return 0, 0, fmt.Errorf("%w: read of %d words", ErrProtocol, count)
	}
	return binary.LittleEndian.Uint32(p[0:4]), count, nil
}

func encodeWrite(buf []byte, addr uint32, src []uint64) []byte {
	binary.LittleEndian.PutUint32(buf[0:4], addr)
	return buf[:4+putWords(buf[4:], src)]
}

func decodeWrite(p []byte) (uint32, []uint64, error) {
	if len(p) < 12 || (len(p)-4)%8 != 0 {
		return 0, nil, fmt.Errorf("%w: write request of %d bytes", ErrProtocol, len(p))
	}
	return binary.LittleEndian.Uint32(p[0:4]), getWords(p[4:]), nil
}

func putWords(buf []byte, words []uint64) int {
	for i, w := range words {
		binary.LittleEndian.PutUint64(buf[i*8:], w)
	}
	return len(words) * 8
}

func getWords(p []byte) []uint64 {
	words := make([]uint64, len(p)/8)
	for i := range words {
		words[i] = binary.LittleEndian.Uint64(p[i*8:])
	}
	return words
}

func encodeError(buf []byte, err error) []byte {
	buf[0] = codeGeneric
	if errors.Is(err, pkg.ErrInvalidValue) {
		buf[0] = codeInvalidValue
	}
	n := copy(buf[1:maxPayload], err.Error())
	return buf[:1+n]
}

func decodeError(p []byte) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: empty error response", ErrProtocol)
	}
	if p[0] == codeInvalidValue {
		return fmt.Errorf("%w: %w: %s", ErrRemote, pkg.ErrInvalidValue, p[1:])
	}
	return fmt.Errorf("%w: %s", ErrRemote, p[1:])
}

// createFIFO creates a named pipe at path, replacing any existing file.
func createFIFO(path string) error {
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFIFOCreate, filepath.Base(path), err)
	}
	return nil
}

// openFIFO opens a named pipe for reading and writing. Opening both ends
// never blocks on Linux, so either side may start first.
func openFIFO(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFIFOOpen, filepath.Base(path), err)
	}
	return f, nil
}
