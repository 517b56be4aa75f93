//go:build !profile

package prof

import "errors"

// Profiling errors. They are defined for API compatibility; the stub
// session only returns ErrStopped.
var (
	ErrActive  = errors.New("prof: session already active")
	ErrStopped = errors.New("prof: session stopped")
)

// Enabled reports whether profiling support is compiled in.
const Enabled = false

// Session is a no-op when built without the "profile" tag.
type Session struct{ stopped bool }

// Start returns a session that records nothing.
func Start(_ Options) (*Session, error) { return &Session{}, nil }

// Stop is a no-op apart from rejecting a second call.
func (s *Session) Stop() error {
	if s.stopped {
		return ErrStopped
	}
	s.stopped = true
	return nil
}
