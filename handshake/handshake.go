package handshake

import (
	"fmt"
	"log/slog"
	"time"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/spin"

	"github.com/ardnew/softreg/bitfield"
	"github.com/ardnew/softreg/pkg"
	"github.com/ardnew/softreg/transport"
)

// DefaultTimeout is the completion budget used when none is configured.
const DefaultTimeout = 10 * time.Millisecond

// State is the progress of one handshake.
type State uint8

// Handshake states. Completed and TimedOut are terminal.
const (
	Idle State = iota
	Requested
	Completed
	TimedOut
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Requested:
		return "Requested"
	case Completed:
		return "Completed"
	case TimedOut:
		return "TimedOut"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Strategy selects how the poll loop paces itself between observations.
type Strategy uint8

// Poll pacing strategies.
const (
	// StrategySpin pauses with CPU relax hints and escalates to yielding
	// the processor. Best for sub-microsecond hardware latencies.
	StrategySpin Strategy = iota
	// StrategyBackoff sleeps with growing intervals. Best for slow remote
	// transports where every poll is a round trip.
	StrategyBackoff
	// StrategyBusy polls back to back with no pause.
	StrategyBusy
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategySpin:
		return "spin"
	case StrategyBackoff:
		return "backoff"
	case StrategyBusy:
		return "busy"
	default:
		return fmt.Sprintf("Strategy(%d)", uint8(s))
	}
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range []Strategy{StrategySpin, StrategyBackoff, StrategyBusy} {
		if s.String() == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown poll strategy %q", pkg.ErrInvalidValue, name)
}

// Result describes a finished handshake.
type Result struct {
	State   State
	Polls   int
	Elapsed time.Duration
}

// Handshake drives one request bit of a control register.
//
// Software sets Flag to 1 and hardware clears it when the operation has
// completed. Selector fields (row index, data registers) must be written
// before Run is called.
type Handshake struct {
	T         transport.Transport
	Flag      bitfield.Spec
	WordWidth uint
	Timeout   time.Duration
	Strategy  Strategy

	state State
}

// New returns an idle handshake on flag.
func New(t transport.Transport, flag bitfield.Spec, wordWidth uint, timeout time.Duration, strategy Strategy) *Handshake {
	return &Handshake{
		T:         t,
		Flag:      flag,
		WordWidth: wordWidth,
		Timeout:   timeout,
		Strategy:  strategy,
	}
}

// State returns the state of the most recent request.
func (h *Handshake) State() State { return h.state }

// Request sets the request bit and moves the handshake to Requested.
func (h *Handshake) Request() error {
	h.state = Idle
	if err := bitfield.Set(h.T, h.Flag, 1, h.WordWidth); err != nil {
		return err
	}
	h.state = Requested
	return nil
}

// Poll observes the request bit once. It returns nil when hardware has
// cleared the bit and [iox.ErrWouldBlock] while the bit is still set.
func (h *Handshake) Poll() error {
	v, err := bitfield.Get(h.T, h.Flag)
	if err != nil {
		return err
	}
	if v != 0 {
		return iox.ErrWouldBlock
	}
	if h.state == Requested {
		h.state = Completed
	}
	return nil
}

// Run requests the operation and blocks until hardware clears the request
// bit or the timeout elapses on the monotonic clock.
//
// At least one poll is made, and [pkg.ErrOperationTimeout] is returned only
// after the full budget has elapsed. Nothing is retried; after a timeout
// the state of the target resource is undefined. A zero Timeout uses
// [DefaultTimeout].
func (h *Handshake) Run() (Result, error) {
	if err := h.Request(); err != nil {
		return Result{State: h.state}, err
	}
	return h.Wait()
}

// Wait polls until the bit reads zero without setting it first. It serves
// status bits that hardware raises on its own, such as a busy flag after a
// sample strobe. Timeout semantics match [Handshake.Run].
func (h *Handshake) Wait() (Result, error) {
	h.state = Requested
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var (
		res     Result
		sw      spin.Wait
		backoff iox.Backoff
	)
	start := time.Now()
	for {
		res.Polls++
		err := h.Poll()
		res.Elapsed = time.Since(start)
		if err == nil {
			res.State = h.state
			if pkg.LogEnabled(slog.LevelDebug) {
				pkg.LogDebug(pkg.ComponentHandshake, "handshake completed",
					"flag", h.Flag.Name,
					"polls", res.Polls,
					"elapsed", res.Elapsed)
			}
			return res, nil
		}
		if !iox.IsWouldBlock(err) {
			res.State = h.state
			return res, err
		}
		if res.Elapsed >= timeout {
			h.state = TimedOut
			res.State = TimedOut
			pkg.LogWarn(pkg.ComponentHandshake, "handshake timed out",
				"flag", h.Flag.Name,
				"polls", res.Polls,
				"elapsed", res.Elapsed,
				"timeout", timeout)
			return res, fmt.Errorf("%w: %s still set after %v (%d polls)",
				pkg.ErrOperationTimeout, h.Flag, res.Elapsed, res.Polls)
		}

		switch h.Strategy {
		case StrategySpin:
			sw.Once()
		case StrategyBackoff:
			backoff.Wait()
		}
	}
}

// Run performs a single handshake on flag.
func Run(t transport.Transport, flag bitfield.Spec, wordWidth uint, timeout time.Duration, strategy Strategy) (Result, error) {
	return New(t, flag, wordWidth, timeout, strategy).Run()
}

// =============================================================================
// Preconditions
// =============================================================================

// RequireFree fails with [pkg.ErrAlreadyOccupied] when the occupancy bit
// is set.
func RequireFree(t transport.Transport, occupancy bitfield.Spec) error {
	v, err := bitfield.Get(t, occupancy)
	if err != nil {
		return err
	}
	if v != 0 {
		return pkg.ErrAlreadyOccupied
	}
	return nil
}

// RequireOccupied fails with [pkg.ErrNotOccupied] when the occupancy bit
// is clear.
func RequireOccupied(t transport.Transport, occupancy bitfield.Spec) error {
	v, err := bitfield.Get(t, occupancy)
	if err != nil {
		return err
	}
	if v == 0 {
		return pkg.ErrNotOccupied
	}
	return nil
}
