package postgres

import (
	"context"
	"fmt"

	"github.com/osintlabs/profiler/internal/profiler"
)

// ResultStore implements profiler.ResultStore over Postgres.
//
// Expected schema:
//
//	CREATE TABLE results (
//	    id BIGSERIAL PRIMARY KEY,
//	    tracker_id TEXT NOT NULL,
//	    site_name TEXT NOT NULL,
//	    site_url TEXT NOT NULL,
//	    status CHAR(1) NOT NULL,
//	    error TEXT NOT NULL DEFAULT '',
//	    image_hash TEXT NOT NULL DEFAULT '',
//	    image_name TEXT NOT NULL DEFAULT '',
//	    image_mime TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL,
//	    UNIQUE (tracker_id, site_url)
//	);
type ResultStore struct {
	q Querier
}

// NewResultStore constructs a ResultStore over a querier.
func NewResultStore(q Querier) (*ResultStore, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	return &ResultStore{q: q}, nil
}

// Insert stores a result and assigns its id. The (tracker_id, site_url)
// unique constraint maps to profiler.ErrDuplicateResult.
func (s *ResultStore) Insert(ctx context.Context, r *profiler.Result) error {
	query := `
INSERT INTO results (tracker_id, site_name, site_url, status, error, image_hash, image_name, image_mime, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err := s.q.QueryRow(ctx, query,
		r.TrackerID,
		r.SiteName,
		r.SiteURL,
		string(r.Status),
		r.Error,
		r.Image.Hash,
		r.Image.Name,
		r.Image.Mime,
		r.CreatedAt,
	).Scan(&r.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return profiler.ErrDuplicateResult
		}
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

// ListByTracker returns the results recorded for a tracker id, oldest first.
func (s *ResultStore) ListByTracker(ctx context.Context, trackerID string) ([]profiler.Result, error) {
	query := `
SELECT id, tracker_id, site_name, site_url, status, error, image_hash, image_name, image_mime, created_at
FROM results
WHERE tracker_id = $1
ORDER BY id`
	rows, err := s.q.Query(ctx, query, trackerID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []profiler.Result
	for rows.Next() {
		var (
			r      profiler.Result
			status string
		)
		err := rows.Scan(
			&r.ID,
			&r.TrackerID,
			&r.SiteName,
			&r.SiteURL,
			&status,
			&r.Error,
			&r.Image.Hash,
			&r.Image.Name,
			&r.Image.Mime,
			&r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		r.Status = profiler.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return out, nil
}
