package pkg

import (
	"errors"
	"fmt"
)

// Register stack errors.
var (
	// ErrInvalidValue indicates a field value that does not fit its width,
	// a zero or oversized field width, or an unsupported word width.
	ErrInvalidValue = errors.New("invalid field value")

	// ErrRowIndexOutOfRange indicates a table row outside [0, rows).
	ErrRowIndexOutOfRange = errors.New("row index out of range")

	// ErrAlreadyOccupied indicates a write to a table row that is in use.
	ErrAlreadyOccupied = errors.New("row already occupied")

	// ErrNotOccupied indicates a clear of a table row that is free.
	ErrNotOccupied = errors.New("row not occupied")

	// ErrOperationTimeout indicates a hardware request bit did not clear
	// within the handshake budget.
	ErrOperationTimeout = errors.New("operation timeout")

	// ErrTruncatedRecord indicates fewer words than a record layout requires.
	ErrTruncatedRecord = errors.New("truncated record")

	// ErrTransport indicates a failure of the underlying register bus.
	ErrTransport = errors.New("transport error")

	// ErrFieldOverlap indicates two fields of one register map share bits.
	ErrFieldOverlap = errors.New("overlapping register fields")

	// ErrUnknownField indicates a lookup of a field name not in the map.
	ErrUnknownField = errors.New("unknown register field")

	// ErrInvalidGeometry indicates inconsistent device layout constants.
	ErrInvalidGeometry = errors.New("invalid device geometry")
)

// TransportError wraps a bus failure so that it matches both [ErrTransport]
// and the underlying cause with errors.Is.
func TransportError(op string, addr uint32, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %s 0x%04x: %w", ErrTransport, op, addr, err)
}

// IsTransient reports whether err may succeed if the operation is repeated
// after verifying hardware state. Only handshake timeouts qualify; every
// other error indicates bad geometry or stale assumptions about the device.
func IsTransient(err error) bool {
	return errors.Is(err, ErrOperationTimeout)
}
