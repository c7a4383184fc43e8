package record

import (
	"context"
	"log"
	"time"

	"rollcall/internal/events"
	"rollcall/internal/metrics"
)

// Service wraps the store with change-event publication and the review
// workflow. All record mutations in the system go through it, so the
// event stream sees every insert, update and delete.
type Service struct {
	store Store
	bus   events.Bus
	now   func() time.Time
}

// NewService builds a record service. bus may be nil when no consumer
// exists (tests exercising only the store path).
func NewService(store Store, bus events.Bus) *Service {
	return &Service{store: store, bus: bus, now: time.Now}
}

// Store exposes the underlying store for read paths.
func (s *Service) Store() Store { return s.store }

// Write upserts the record and publishes the change. A second write by
// the same student overwrites the first (last write wins).
func (s *Service) Write(ctx context.Context, rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = s.now().UTC()
	}
	inserted, err := s.store.Upsert(ctx, rec)
	if err != nil {
		return err
	}
	kind := events.KindUpdate
	if inserted {
		kind = events.KindInsert
	}
	s.publish(ctx, rec.SessionID, rec.StudentID, kind)
	return nil
}

// Approve promotes the student's pending record to verified so it counts
// toward the official statistics. ErrNoPendingRecord when there is
// nothing to approve.
func (s *Service) Approve(ctx context.Context, sessionID, studentID string) error {
	if err := s.store.MarkVerified(ctx, sessionID, studentID); err != nil {
		return err
	}
	metrics.Approvals.WithLabelValues("approve").Inc()
	s.publish(ctx, sessionID, studentID, events.KindUpdate)
	return nil
}

// Reject discards the student's pending record; the student reverts to
// "no record" and reappears in the roster complement.
func (s *Service) Reject(ctx context.Context, sessionID, studentID string) error {
	if err := s.store.DeletePending(ctx, sessionID, studentID); err != nil {
		return err
	}
	metrics.Approvals.WithLabelValues("reject").Inc()
	s.publish(ctx, sessionID, studentID, events.KindDelete)
	return nil
}

// Summary refolds the session's current record set.
func (s *Service) Summary(ctx context.Context, sessionID string) (Summary, error) {
	recs, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(sessionID, recs), nil
}

func (s *Service) publish(ctx context.Context, sessionID, studentID string, kind events.Kind) {
	if s.bus == nil {
		return
	}
	evt := events.Event{SessionID: sessionID, StudentID: studentID, Kind: kind, At: s.now().UTC()}
	if err := s.bus.Publish(ctx, evt); err != nil {
		log.Printf("record: event publish failed for session %s: %v", sessionID, err)
	}
}
