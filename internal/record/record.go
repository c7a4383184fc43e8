// Package record owns attendance records: the per-(session, student)
// upsert store, the live aggregation fold, and the pending-record review
// workflow.
package record

import (
	"context"
	"errors"
	"time"
)

// Status is the attendance outcome recorded for a student.
type Status string

const (
	StatusPresent           Status = "present"
	StatusExcusedPermission Status = "excused_permission"
	StatusExcusedSick       Status = "excused_sick"
	StatusAbsent            Status = "absent"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPresent, StatusExcusedPermission, StatusExcusedSick, StatusAbsent}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// ErrNoPendingRecord is returned by review actions when the student has
// no unverified record in the session.
var ErrNoPendingRecord = errors.New("no pending record for this student")

// Record is one student's presence claim within a session. At most one
// exists per (SessionID, StudentID); writes are idempotent upserts and a
// second write overwrites the first.
type Record struct {
	SessionID  string    `json:"session_id"`
	StudentID  string    `json:"student_id"`
	Status     Status    `json:"status"`
	IsVerified bool      `json:"is_verified"`
	RecordedAt time.Time `json:"recorded_at"`
	Lat        *float64  `json:"lat,omitempty"`
	Lng        *float64  `json:"lng,omitempty"`
}

// Store persists records keyed on (session, student).
type Store interface {
	// Upsert writes the record, overwriting any prior row for the pair.
	// inserted is true when no prior row existed.
	Upsert(ctx context.Context, rec Record) (inserted bool, err error)
	Get(ctx context.Context, sessionID, studentID string) (*Record, error)
	// MarkVerified promotes the pair's pending record; ErrNoPendingRecord
	// when none exists.
	MarkVerified(ctx context.Context, sessionID, studentID string) error
	// DeletePending removes the pair's pending record; ErrNoPendingRecord
	// when none exists.
	DeletePending(ctx context.Context, sessionID, studentID string) error
	ListBySession(ctx context.Context, sessionID string) ([]Record, error)
}
