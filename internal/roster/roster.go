// Package roster reads class enrollment. The roll-call engine only ever
// consumes it to compute the "no record yet" complement; enrollment
// management itself lives elsewhere.
package roster

import (
	"context"
	"database/sql"
)

// Provider returns the enrolled student ids for a class.
type Provider interface {
	Students(ctx context.Context, classID string) ([]string, error)
}

// Repository reads the roster from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

var _ Provider = (*Repository)(nil)

// Students lists enrolled student ids in stable order.
func (r *Repository) Students(ctx context.Context, classID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM class_roster WHERE class_id = $1 ORDER BY student_id
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Static is a fixed in-memory Provider for dev mode and tests.
type Static map[string][]string

var _ Provider = (Static)(nil)

// Students returns the configured ids for the class.
func (s Static) Students(_ context.Context, classID string) ([]string, error) {
	return s[classID], nil
}
