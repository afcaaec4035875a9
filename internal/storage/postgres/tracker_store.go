package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/osintlabs/profiler/internal/profiler"
)

// TrackerStore implements profiler.TrackerStore over Postgres. The single-row
// UPDATE ... RETURNING makes Increment atomic across processes.
//
// Expected schema:
//
//	CREATE TABLE trackers (
//	    id TEXT PRIMARY KEY,
//	    current INT NOT NULL DEFAULT 0,
//	    total INT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type TrackerStore struct {
	q Querier
}

// NewTrackerStore constructs a TrackerStore over a querier.
func NewTrackerStore(q Querier) (*TrackerStore, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	return &TrackerStore{q: q}, nil
}

// Register creates the counter row for a tracker id.
func (s *TrackerStore) Register(ctx context.Context, trackerID string, total int) error {
	if total <= 0 {
		return fmt.Errorf("total must be positive, got %d", total)
	}
	query := `INSERT INTO trackers (id, total) VALUES ($1, $2)`
	if _, err := s.q.Exec(ctx, query, trackerID, total); err != nil {
		if isUniqueViolation(err) {
			return profiler.ErrTrackerExists
		}
		return fmt.Errorf("register tracker: %w", err)
	}
	return nil
}

// Increment advances the counter and returns the new current value and the
// registered total.
func (s *TrackerStore) Increment(ctx context.Context, trackerID string) (int, int, error) {
	query := `
UPDATE trackers
SET current = current + 1
WHERE id = $1
RETURNING current, total`
	var current, total int
	err := s.q.QueryRow(ctx, query, trackerID).Scan(&current, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, profiler.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("increment tracker: %w", err)
	}
	return current, total, nil
}
