//go:build profile

package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/ardnew/softreg/pkg"
)

// Profiling errors.
var (
	// ErrActive indicates a session is already running.
	ErrActive = errors.New("prof: session already active")

	// ErrStopped indicates Stop was called twice.
	ErrStopped = errors.New("prof: session stopped")
)

// Enabled reports whether profiling support is compiled in.
const Enabled = true

var (
	mu     sync.Mutex
	active bool
)

// Session is a running profile capture.
type Session struct {
	opts    Options
	cpu     *os.File
	stopped bool
}

// Start begins a profiling session.
func Start(opts Options) (*Session, error) {
	mu.Lock()
	defer mu.Unlock()

	if active {
		return nil, ErrActive
	}

	s := &Session{opts: opts}
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, err
		}
		s.cpu = f
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}

	active = true
	pkg.LogDebug(pkg.ComponentProf, "profiling started",
		"cpu", opts.CPU, "heap", opts.Heap, "block", opts.Block, "mutex", opts.Mutex)
	return s, nil
}

// Stop ends CPU profiling and writes the requested snapshot profiles.
// Every profile is attempted; failures are aggregated.
func (s *Session) Stop() error {
	mu.Lock()
	defer mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	s.stopped = true
	active = false

	var result *multierror.Error
	if s.cpu != nil {
		pprof.StopCPUProfile()
		if err := s.cpu.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, snap := range []struct{ name, path string }{
		{"heap", s.opts.Heap},
		{"block", s.opts.Block},
		{"mutex", s.opts.Mutex},
	} {
		if snap.path == "" {
			continue
		}
		if err := write(snap.name, snap.path); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if s.opts.Block != "" {
		runtime.SetBlockProfileRate(0)
	}
	if s.opts.Mutex != "" {
		runtime.SetMutexProfileFraction(0)
	}
	return result.ErrorOrNil()
}

// write saves the named snapshot profile to path.
func write(name, path string) error {
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("prof: unknown profile %q", name)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := p.WriteTo(f, 0); err != nil {
		f.Close()
		return fmt.Errorf("prof: write %s: %w", name, err)
	}
	return f.Close()
}
