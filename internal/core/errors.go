package core

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest covers malformed caller input (non-positive row
	// counts, bad bounds).
	ErrInvalidRequest = errors.New("invalid request")

	// ErrEmptyInput is returned when an append carries no records.
	ErrEmptyInput = errors.New("no records to write")

	// ErrNotFound is returned for unknown reservation ids.
	ErrNotFound = errors.New("not found")

	// ErrSheetNotFound is returned by reads against sheets that were never
	// written.
	ErrSheetNotFound = errors.New("sheet not found")

	// ErrInvalidState is returned when a reservation is not active at a
	// point where the operation requires it (already completed, expired,
	// or with a write already in flight).
	ErrInvalidState = errors.New("reservation not active")

	// ErrOverflow is the sentinel matched by OverflowError.
	ErrOverflow = errors.New("reservation overflow")
)

// OverflowError reports an attempt to write more records into a reservation
// than it has rows. Nothing is written when it is returned.
type OverflowError struct {
	ReservationID string
	Reserved      int64
	Requested     int64
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("reservation %s holds %d rows, got %d records", e.ReservationID, e.Reserved, e.Requested)
}

func (e *OverflowError) Is(target error) bool {
	return target == ErrOverflow
}
