// Package lane provides the client record model and the rank engine that
// keeps every status lane a contiguous, gap-free priority sequence.
package lane

import (
	"fmt"
	"time"
)

// Status identifies the lane a client record belongs to.
type Status string

const (
	// StatusBacklog is the initial lane for new client records.
	StatusBacklog Status = "backlog"
	// StatusInProgress is the lane for records being actively worked.
	StatusInProgress Status = "in-progress"
	// StatusComplete is the lane for finished records.
	StatusComplete Status = "complete"
)

// Statuses lists all recognized lanes in presentation order.
var Statuses = []Status{StatusBacklog, StatusInProgress, StatusComplete}

// Valid reports whether s is one of the recognized lanes.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusComplete:
		return true
	}
	return false
}

// order returns the presentation rank of a lane. Unknown lanes sort last.
func (s Status) order() int {
	for i, known := range Statuses {
		if s == known {
			return i
		}
	}
	return len(Statuses)
}

// ParseStatus converts a raw string into a Status.
// Returns ErrInvalidStatus for unrecognized values.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q (expected one of %v)", ErrInvalidStatus, raw, Statuses)
	}
	return s, nil
}

// Client is a single tracked record. ID is assigned at creation and never
// changes; Priority is the record's 1-based position within its lane and is
// only meaningful relative to other records in the same lane.
type Client struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Priority  int        `json:"priority"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Move describes one requested update against a client record.
// A nil NewStatus means no lane change was requested; a nil NewPriority
// means no reorder was requested.
type Move struct {
	TargetID    int64
	NewStatus   *Status
	NewPriority *int
}

// Change is a single (id, status, priority) write produced by the rank
// engine. The set of changes for one move is committed atomically or not
// at all.
type Change struct {
	ID       int64
	Status   Status
	Priority int
}
