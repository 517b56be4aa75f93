// Package pkg provides shared utilities for the softreg register stack.
//
// This package contains common functionality used by the transports, the
// field accessors, the record codec and the device drivers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for register and table failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentTable, "row written", "row", 3)
//
// Noisy components can be held above the global level:
//
//	pkg.SetComponentLevel(pkg.ComponentHandshake, slog.LevelInfo)
//
// # Errors
//
// Failures are reported as sentinel values wrapped with context:
//
//	if errors.Is(err, pkg.ErrAlreadyOccupied) {
//	    // row must be cleared first
//	}
//
// Only [ErrOperationTimeout] is worth retrying (see [IsTransient]); the
// others point at bad geometry or stale assumptions about hardware state.
package pkg
