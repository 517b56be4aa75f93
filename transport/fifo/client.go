package fifo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// DefaultTimeout bounds the wait for each response.
const DefaultTimeout = 5 * time.Second

// Client is a register bus served by a [Server] in another process.
// It implements [transport.Transport] and [transport.MultiWord] and is
// safe for concurrent use; requests are serialized.
type Client struct {
	dir string

	mu      sync.Mutex
	tx, rx  *os.File
	timeout time.Duration
	broken  error

	txBuf [maxMessage]byte
	rxBuf [maxMessage]byte
	pBuf  [maxPayload]byte
}

// Dial opens the FIFOs of the bus directory dir, which a [Server] must
// have created.
func Dial(dir string) (*Client, error) {
	c := &Client{dir: dir, timeout: DefaultTimeout}
	var err error
	if c.tx, err = openFIFO(filepath.Join(dir, fifoHostToDevice)); err != nil {
		return nil, err
	}
	if c.rx, err = openFIFO(filepath.Join(dir, fifoDeviceToHost)); err != nil {
		c.tx.Close()
		return nil, err
	}
	pkg.LogDebug(pkg.ComponentTransport, "fifo client connected", "dir", dir)
	return c, nil
}

// SetTimeout sets the response timeout. Zero restores [DefaultTimeout].
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		d = DefaultTimeout
	}
	c.timeout = d
}

// call sends one request and waits for its response. A response that
// does not arrive in time leaves the stream out of step, so the client
// refuses further requests.
func (c *Client) call(typ byte, payload []byte) (message, error) {
	if c.tx == nil {
		return message{}, ErrNotConnected
	}
	if c.broken != nil {
		return message{}, c.broken
	}
	if err := writeMessage(c.tx, c.txBuf[:], typ, payload); err != nil {
		return message{}, err
	}
	msg, err := readMessage(context.Background(), c.rx, c.rxBuf[:], time.Now().Add(c.timeout))
	if err != nil {
		c.broken = fmt.Errorf("%w: %w", ErrNotConnected, err)
		return message{}, err
	}
	if msg.typ == msgError {
		return message{}, decodeError(msg.payload)
	}
	return msg, nil
}

func (c *Client) readBurst(addr uint32, dst []uint64) error {
	msg, err := c.call(msgRead, encodeRead(c.pBuf[:], addr, len(dst)))
	if err != nil {
		return err
	}
	if msg.typ != msgData || len(msg.payload) != 8*len(dst) {
		return fmt.Errorf("%w: read response type 0x%02x, %d bytes", ErrProtocol, msg.typ, len(msg.payload))
	}
	copy(dst, getWords(msg.payload))
	return nil
}

func (c *Client) writeBurst(addr uint32, src []uint64) error {
	msg, err := c.call(msgWrite, encodeWrite(c.pBuf[:], addr, src))
	if err != nil {
		return err
	}
	if msg.typ != msgAck {
		return fmt.Errorf("%w: write response type 0x%02x", ErrProtocol, msg.typ)
	}
	return nil
}

// ReadWord implements [transport.Transport].
func (c *Client) ReadWord(addr uint32) (uint64, error) {
	var v [1]uint64
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.readBurst(addr, v[:]); err != nil {
		return 0, err
	}
	return v[0], nil
}

// WriteWord implements [transport.Transport].
func (c *Client) WriteWord(addr uint32, v uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeBurst(addr, []uint64{v})
}

// ReadWords implements [transport.MultiWord]. Bursts longer than
// [MaxBurst] are split into several messages.
func (c *Client) ReadWords(addr uint32, dst []uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for off := 0; off < len(dst); off += MaxBurst {
		end := min(off+MaxBurst, len(dst))
		if err := c.readBurst(addr+uint32(off), dst[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// WriteWords implements [transport.MultiWord].
func (c *Client) WriteWords(addr uint32, src []uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for off := 0; off < len(src); off += MaxBurst {
		end := min(off+MaxBurst, len(src))
		if err := c.writeBurst(addr+uint32(off), src[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the client's FIFO handles.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tx == nil {
		return nil
	}
	var result error
	for _, f := range []*os.File{c.tx, c.rx} {
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	c.tx, c.rx = nil, nil
	return result
}

var _ transport.MultiWord = (*Client)(nil)
