package record

import (
	"context"
	"database/sql"
	"errors"
)

// Repository persists records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Store = (*Repository)(nil)

// Upsert writes the (session, student) row, last write wins. The xmax
// trick distinguishes a fresh insert from a conflict update.
func (r *Repository) Upsert(ctx context.Context, rec Record) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, is_verified, recorded_at, lat, lng)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			is_verified = EXCLUDED.is_verified,
			recorded_at = EXCLUDED.recorded_at,
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng
		RETURNING (xmax = 0)
	`, rec.SessionID, rec.StudentID, rec.Status, rec.IsVerified, rec.RecordedAt, rec.Lat, rec.Lng)
	var inserted bool
	if err := row.Scan(&inserted); err != nil {
		return false, err
	}
	return inserted, nil
}

// Get returns the pair's record or nil.
func (r *Repository) Get(ctx context.Context, sessionID, studentID string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT session_id, student_id, status, is_verified, recorded_at, lat, lng
		FROM attendance_records WHERE session_id = $1 AND student_id = $2
	`, sessionID, studentID)
	var rec Record
	err := row.Scan(&rec.SessionID, &rec.StudentID, &rec.Status, &rec.IsVerified, &rec.RecordedAt, &rec.Lat, &rec.Lng)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkVerified flips is_verified on the pending record only.
func (r *Repository) MarkVerified(ctx context.Context, sessionID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET is_verified = TRUE
		WHERE session_id = $1 AND student_id = $2 AND is_verified = FALSE
	`, sessionID, studentID)
	if err != nil {
		return err
	}
	return pendingAffected(res)
}

// DeletePending removes the pending record only; a verified record is
// never deleted through the review path.
func (r *Repository) DeletePending(ctx context.Context, sessionID, studentID string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM attendance_records
		WHERE session_id = $1 AND student_id = $2 AND is_verified = FALSE
	`, sessionID, studentID)
	if err != nil {
		return err
	}
	return pendingAffected(res)
}

// ListBySession returns the session's records ordered by arrival.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, student_id, status, is_verified, recorded_at, lat, lng
		FROM attendance_records WHERE session_id = $1
		ORDER BY recorded_at ASC, student_id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var recs []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.SessionID, &rec.StudentID, &rec.Status, &rec.IsVerified, &rec.RecordedAt, &rec.Lat, &rec.Lng); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func pendingAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoPendingRecord
	}
	return nil
}
