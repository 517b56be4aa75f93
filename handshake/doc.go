// Package handshake implements the request/poll protocol used to run
// hardware operations through a control register.
//
// The host sets a request bit, hardware clears it on completion, and the
// host polls the bit against a wall-clock budget:
//
//	Idle -> Requested -> Completed
//	                  -> TimedOut
//
// A timeout is reported as [github.com/ardnew/softreg/pkg.ErrOperationTimeout]
// and is never retried automatically. Callers that need reliability verify
// the resulting hardware state and repeat the operation themselves.
//
// # Poll Pacing
//
// [StrategySpin] uses adaptive spin waiting, [StrategyBackoff] sleeps with
// growing intervals between polls, and [StrategyBusy] polls back to back.
//
// # Preconditions
//
// [RequireFree] and [RequireOccupied] check an occupancy bit before a write
// or delete is issued, failing fast with
// [github.com/ardnew/softreg/pkg.ErrAlreadyOccupied] or
// [github.com/ardnew/softreg/pkg.ErrNotOccupied].
package handshake
