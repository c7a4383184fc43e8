package session

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists sessions in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// Upsert inserts or reuses the (class_id, session_date) row. IsOpen and
// Mode are taken from the argument; an existing row keeps its id and
// current token.
func (r *Repository) Upsert(ctx context.Context, s Session) (Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_sessions (id, class_id, session_date, is_open, mode)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_id, session_date) DO UPDATE SET
			is_open = EXCLUDED.is_open,
			mode = EXCLUDED.mode,
			updated_at = NOW()
		RETURNING id, class_id, session_date, is_open, mode, COALESCE(current_token, ''), created_at, updated_at
	`, s.ID, s.ClassID, s.Date, s.IsOpen, s.Mode)
	return scanSession(row)
}

// GetByID returns a session or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, session_date, is_open, mode, COALESCE(current_token, ''), created_at, updated_at
		FROM attendance_sessions WHERE id = $1
	`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByClassDate returns the class's session for the day, or nil.
func (r *Repository) GetByClassDate(ctx context.Context, classID, date string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, class_id, session_date, is_open, mode, COALESCE(current_token, ''), created_at, updated_at
		FROM attendance_sessions WHERE class_id = $1 AND session_date = $2
	`, classID, date)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetOpen toggles is_open on an existing row.
func (r *Repository) SetOpen(ctx context.Context, id string, open bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET is_open = $2, updated_at = NOW() WHERE id = $1
	`, id, open)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

// SetToken replaces the current rotating token.
func (r *Repository) SetToken(ctx context.Context, id, tok string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_sessions SET current_token = $2, updated_at = NOW() WHERE id = $1
	`, id, tok)
	if err != nil {
		return err
	}
	return checkAffected(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var s Session
	var day time.Time
	if err := row.Scan(&s.ID, &s.ClassID, &day, &s.IsOpen, &s.Mode, &s.CurrentToken, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return Session{}, err
	}
	s.Date = day.Format(DateFormat)
	return s, nil
}

func checkAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
