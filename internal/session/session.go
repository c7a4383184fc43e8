package session

import (
	"context"
	"errors"
	"time"
)

// Mode selects how students register presence for a session.
type Mode string

const (
	ModeManual Mode = "manual"
	ModeQR     Mode = "qr_code"
)

// DateFormat is the calendar-day key format for the (class, date) upsert.
const DateFormat = "2006-01-02"

// ErrNotFound is returned when no session matches the lookup.
var ErrNotFound = errors.New("session not found")

// Session is one roll-call period for a class on a calendar day.
// At most one row exists per (ClassID, Date); open/close toggles the
// same row rather than creating a new one.
type Session struct {
	ID           string    `json:"id"`
	ClassID      string    `json:"class_id"`
	Date         string    `json:"date"`
	IsOpen       bool      `json:"is_open"`
	Mode         Mode      `json:"mode"`
	CurrentToken string    `json:"current_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store persists sessions. Upsert is conflict-safe on (ClassID, Date):
// when the row already exists its ID and CurrentToken survive, only
// IsOpen and Mode are overwritten.
type Store interface {
	Upsert(ctx context.Context, s Session) (Session, error)
	GetByID(ctx context.Context, id string) (*Session, error)
	GetByClassDate(ctx context.Context, classID, date string) (*Session, error)
	SetOpen(ctx context.Context, id string, open bool) error
	SetToken(ctx context.Context, id, tok string) error
}

// Rotator starts and stops the rotating-token task for a session.
// Implemented by rotation.Engine; a no-op implementation is fine for
// manual-only deployments.
type Rotator interface {
	Start(sessionID string)
	Stop(sessionID string)
}

// NopRotator satisfies Rotator without doing anything.
type NopRotator struct{}

func (NopRotator) Start(string) {}
func (NopRotator) Stop(string)  {}

// Service owns the session lifecycle and gates the rotation engine.
type Service struct {
	store Store
	rot   Rotator
	now   func() time.Time
}

// NewService builds a session service. rot may be NopRotator.
func NewService(store Store, rot Rotator) *Service {
	if rot == nil {
		rot = NopRotator{}
	}
	return &Service{store: store, rot: rot, now: time.Now}
}

// Open upserts today's session for the class with the requested mode and
// marks it open. Re-opening an existing row reuses it (the mode may
// change); a qr_code session starts the rotation task, anything else
// stops it.
func (s *Service) Open(ctx context.Context, classID string, mode Mode) (Session, error) {
	if classID == "" {
		return Session{}, errors.New("class id required")
	}
	if mode != ModeManual && mode != ModeQR {
		return Session{}, errors.New("unknown session mode")
	}
	sess, err := s.store.Upsert(ctx, Session{
		ClassID: classID,
		Date:    s.now().UTC().Format(DateFormat),
		IsOpen:  true,
		Mode:    mode,
	})
	if err != nil {
		return Session{}, err
	}
	if mode == ModeQR {
		s.rot.Start(sess.ID)
	} else {
		s.rot.Stop(sess.ID)
	}
	return sess, nil
}

// Close marks the session closed and stops rotation. CurrentToken is
// left in place; the verifier rejects on IsOpen regardless.
func (s *Service) Close(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrNotFound
	}
	if err := s.store.SetOpen(ctx, sessionID, false); err != nil {
		return err
	}
	s.rot.Stop(sessionID)
	return nil
}

// Get returns a session by id, or ErrNotFound.
func (s *Service) Get(ctx context.Context, sessionID string) (Session, error) {
	sess, err := s.store.GetByID(ctx, sessionID)
	if err != nil {
		return Session{}, err
	}
	if sess == nil {
		return Session{}, ErrNotFound
	}
	return *sess, nil
}

// Current returns the class's session row for today, or nil.
func (s *Service) Current(ctx context.Context, classID string) (*Session, error) {
	return s.store.GetByClassDate(ctx, classID, s.now().UTC().Format(DateFormat))
}
