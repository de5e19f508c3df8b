package lane

import "errors"

var (
	// ErrNotFound is returned when the target ID does not match any record.
	ErrNotFound = errors.New("client not found")

	// ErrInvalidStatus is returned when a requested status is not one of
	// the recognized lanes.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidPriority is returned when a requested priority falls
	// outside [1, laneSize+1] for the effective lane. The wrapped message
	// reports the valid range.
	ErrInvalidPriority = errors.New("invalid priority")
)
