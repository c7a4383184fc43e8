// Package checkin implements the scan verification protocol: token
// freshness, geofence enforcement, and the idempotent record write.
package checkin

import (
	"context"
	"errors"
	"time"

	"rollcall/internal/metrics"
	"rollcall/internal/record"
	"rollcall/internal/session"
	"rollcall/internal/token"
)

// Strategy selects how a claimed token is validated.
type Strategy string

const (
	// StrategyAuthoritative accepts only the session's single current
	// token. Replay of any earlier token fails even when still fresh.
	StrategyAuthoritative Strategy = "authoritative"
	// StrategyTimeboxed accepts any token minted within the freshness
	// window. Tolerates clock and propagation skew at the cost of
	// admitting replays inside the window.
	StrategyTimeboxed Strategy = "timeboxed"
)

// Request is one scan attempt from a student client.
type Request struct {
	SessionID string   `json:"session_id"`
	StudentID string   `json:"student_id"`
	Token     string   `json:"token"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
}

// Verifier validates scan attempts and writes attendance records. Calls
// from distinct students are fully independent; writes are idempotent
// upserts keyed per (session, student), so no cross-student locking
// exists here.
type Verifier struct {
	sessions  session.Store
	records   *record.Service
	fences    GeofenceProvider
	strategy  Strategy
	freshness time.Duration
	now       func() time.Time
}

// NewVerifier builds a verifier. fences may be nil to disable distance
// checks globally.
func NewVerifier(sessions session.Store, records *record.Service, fences GeofenceProvider, strategy Strategy, freshness time.Duration) *Verifier {
	if strategy != StrategyTimeboxed {
		strategy = StrategyAuthoritative
	}
	if freshness <= 0 {
		freshness = 35 * time.Second
	}
	return &Verifier{
		sessions:  sessions,
		records:   records,
		fences:    fences,
		strategy:  strategy,
		freshness: freshness,
		now:       time.Now,
	}
}

// Verify runs the full protocol for one scan. Every failure is terminal
// for the attempt; the student must re-scan with a fresh token. The
// session's open flag is re-read on every call, so closing a session is
// immediately effective.
func (v *Verifier) Verify(ctx context.Context, req Request) error {
	err := v.verify(ctx, req)
	metrics.Checkins.WithLabelValues(Reason(err)).Inc()
	return err
}

func (v *Verifier) verify(ctx context.Context, req Request) error {
	sess, err := v.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if sess == nil || !sess.IsOpen {
		return ErrSessionClosed
	}
	if req.StudentID == "" {
		return ErrIdentityMissing
	}

	payload, err := token.Parse(req.Token)
	if err != nil {
		return err
	}

	switch v.strategy {
	case StrategyTimeboxed:
		if payload.SessionID != sess.ID {
			return ErrTokenMismatch
		}
		if !payload.Fresh(v.now(), v.freshness) {
			return ErrTokenExpired
		}
	default:
		if sess.CurrentToken == "" || req.Token != sess.CurrentToken {
			return ErrTokenMismatch
		}
	}

	if err := v.checkGeofence(ctx, sess.ClassID, req); err != nil {
		return err
	}

	return v.records.Write(ctx, record.Record{
		SessionID:  sess.ID,
		StudentID:  req.StudentID,
		Status:     record.StatusPresent,
		IsVerified: false,
		Lat:        req.Lat,
		Lng:        req.Lng,
	})
}

// ManualMark is the session owner's direct path: no token, no geofence,
// and the record is written already verified.
func (v *Verifier) ManualMark(ctx context.Context, sessionID, studentID string, status record.Status) error {
	sess, err := v.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil || !sess.IsOpen {
		return ErrSessionClosed
	}
	if studentID == "" {
		return ErrIdentityMissing
	}
	if !status.Valid() {
		return errors.New("unknown attendance status")
	}
	return v.records.Write(ctx, record.Record{
		SessionID:  sessionID,
		StudentID:  studentID,
		Status:     status,
		IsVerified: true,
	})
}

// checkGeofence re-verifies distance server-side from the submitted
// coordinates; the client's own accept/reject decision is never trusted.
func (v *Verifier) checkGeofence(ctx context.Context, classID string, req Request) error {
	if v.fences == nil {
		return nil
	}
	fence, err := v.fences.Geofence(ctx, classID)
	if err != nil {
		return err
	}
	if fence == nil {
		return nil
	}
	if req.Lat == nil || req.Lng == nil {
		return ErrLocationUnavailable
	}
	dist := Haversine(fence.Lat, fence.Lng, *req.Lat, *req.Lng)
	if dist > fence.RadiusMeters {
		return &GeofenceError{DistanceMeters: dist, RadiusMeters: fence.RadiusMeters}
	}
	return nil
}

// Reason maps a verification outcome to a stable label for metrics and
// logs.
func Reason(err error) string {
	var geo *GeofenceError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenMismatch):
		return "token_mismatch"
	case errors.Is(err, token.ErrMalformed):
		return "malformed_token"
	case errors.Is(err, ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, ErrIdentityMissing):
		return "identity_missing"
	case errors.As(err, &geo):
		return "geofence"
	default:
		return "storage_error"
	}
}
