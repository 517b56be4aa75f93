package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// Server exposes a [transport.Transport] to other processes through the
// FIFOs of a bus directory.
type Server struct {
	dir string
	bus transport.Transport

	mu     sync.Mutex
	rx, tx *os.File

	served atomix.Int64
	failed atomix.Int64

	rxBuf [maxMessage]byte
	txBuf [maxMessage]byte
	pBuf  [maxPayload]byte
}

// Listen creates the bus directory dir and its FIFOs and returns a server
// forwarding requests to bus. Call [Server.Serve] to handle requests.
func Listen(dir string, bus transport.Transport) (*Server, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFIFOCreate, dir, err)
	}
	h2d := filepath.Join(dir, fifoHostToDevice)
	d2h := filepath.Join(dir, fifoDeviceToHost)
	for _, path := range []string{h2d, d2h} {
		if err := createFIFO(path); err != nil {
			return nil, err
		}
	}

	s := &Server{dir: dir, bus: bus}
	var err error
	if s.rx, err = openFIFO(h2d); err != nil {
		return nil, err
	}
	if s.tx, err = openFIFO(d2h); err != nil {
		s.rx.Close()
		return nil, err
	}
	pkg.LogInfo(pkg.ComponentTransport, "fifo server listening", "dir", dir)
	return s, nil
}

// Dir returns the bus directory.
func (s *Server) Dir() string { return s.dir }

// Stats returns the number of requests served and the number answered
// with an error.
func (s *Server) Stats() (served, failed int64) {
	return s.served.Load(), s.failed.Load()
}

func (s *Server) files() (rx, tx *os.File, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rx == nil {
		return nil, nil, ErrNotConnected
	}
	return s.rx, s.tx, nil
}

// Serve handles requests until ctx is done or the server is closed.
// It returns ctx.Err() on cancellation.
func (s *Server) Serve(ctx context.Context) error {
	rx, tx, err := s.files()
	if err != nil {
		return err
	}
	for {
		msg, err := readMessage(ctx, rx, s.rxBuf[:], time.Time{})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
		if err := s.handle(tx, msg); err != nil {
			return err
		}
	}
}

// handle answers one request. Only failures to respond are returned; bus
// errors are reported to the client.
func (s *Server) handle(tx *os.File, msg message) error {
	s.served.Add(1)
	typ, payload, err := s.dispatch(msg)
	if err != nil {
		s.failed.Add(1)
		pkg.LogDebug(pkg.ComponentTransport, "fifo request failed", "type", msg.typ, "error", err)
		typ, payload = msgError, encodeError(s.pBuf[:], err)
	}
	return writeMessage(tx, s.txBuf[:], typ, payload)
}

func (s *Server) dispatch(msg message) (byte, []byte, error) {
	switch msg.typ {
	case msgRead:
		addr, count, err := decodeRead(msg.payload)
		if err != nil {
			return 0, nil, err
		}
		words := make([]uint64, count)
		if err := s.read(addr, words); err != nil {
			return 0, nil, err
		}
		return msgData, s.pBuf[:putWords(s.pBuf[:], words)], nil

	case msgWrite:
		addr, words, err := decodeWrite(msg.payload)
		if err != nil {
			return 0, nil, err
		}
		if err := s.write(addr, words); err != nil {
			return 0, nil, err
		}
		return msgAck, nil, nil

	default:
		return 0, nil, fmt.Errorf("%w: message type 0x%02x", ErrProtocol, msg.typ)
	}
}

func (s *Server) read(addr uint32, dst []uint64) error {
	if mw, ok := s.bus.(transport.MultiWord); ok {
		return mw.ReadWords(addr, dst)
	}
	for i := range dst {
		v, err := s.bus.ReadWord(addr + uint32(i))
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func (s *Server) write(addr uint32, src []uint64) error {
	if mw, ok := s.bus.(transport.MultiWord); ok {
		return mw.WriteWords(addr, src)
	}
	for i, v := range src {
		if err := s.bus.WriteWord(addr+uint32(i), v); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the FIFOs and removes them from the bus directory.
// A running [Server.Serve] returns.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rx == nil {
		return nil
	}

	var result error
	for _, f := range []*os.File{s.rx, s.tx} {
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			result = multierror.Append(result, err)
		}
	}
	s.rx, s.tx = nil, nil
	pkg.LogInfo(pkg.ComponentTransport, "fifo server closed", "dir", s.dir)
	return result
}
