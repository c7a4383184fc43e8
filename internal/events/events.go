// Package events carries the per-session record-change stream. Delivery
// is at-least-once and unordered; consumers must refetch authoritative
// store state instead of trusting the payload as a delta.
package events

import (
	"context"
	"time"
)

// Kind is the record mutation that produced the event.
type Kind string

const (
	KindInsert Kind = "insert"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Event notifies consumers that a record for (SessionID, StudentID)
// changed. It intentionally carries no record body.
type Event struct {
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Kind      Kind      `json:"kind"`
	At        time.Time `json:"at"`
}

// Bus is the abstraction over different backends.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe streams events for one session until the returned stop
	// function is called or ctx is cancelled.
	Subscribe(ctx context.Context, sessionID string) (<-chan Event, func(), error)
}
