package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/osintlabs/profiler/internal/profiler"
)

// ArchiveStore implements profiler.ArchiveStore over Postgres.
//
// Expected schema:
//
//	CREATE TABLE archives (
//	    id BIGSERIAL PRIMARY KEY,
//	    tracker_id TEXT NOT NULL UNIQUE,
//	    username TEXT NOT NULL,
//	    group_id BIGINT,
//	    site_count INT NOT NULL,
//	    found_count INT NOT NULL,
//	    not_found_count INT NOT NULL,
//	    error_count INT NOT NULL,
//	    bundle_hash TEXT NOT NULL,
//	    bundle_name TEXT NOT NULL,
//	    bundle_mime TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type ArchiveStore struct {
	q Querier
}

// NewArchiveStore constructs an ArchiveStore over a querier.
func NewArchiveStore(q Querier) (*ArchiveStore, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	return &ArchiveStore{q: q}, nil
}

// Insert stores the archive summary and assigns its id. Retried inserts for
// the same tracker id replace the summary instead of failing.
func (s *ArchiveStore) Insert(ctx context.Context, a *profiler.Archive) error {
	query := `
INSERT INTO archives (tracker_id, username, group_id, site_count, found_count, not_found_count, error_count,
    bundle_hash, bundle_name, bundle_mime, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (tracker_id) DO UPDATE
SET site_count = EXCLUDED.site_count,
    found_count = EXCLUDED.found_count,
    not_found_count = EXCLUDED.not_found_count,
    error_count = EXCLUDED.error_count,
    bundle_hash = EXCLUDED.bundle_hash,
    bundle_name = EXCLUDED.bundle_name,
    bundle_mime = EXCLUDED.bundle_mime
RETURNING id`
	err := s.q.QueryRow(ctx, query,
		a.TrackerID,
		a.Username,
		a.GroupID,
		a.SiteCount,
		a.FoundCount,
		a.NotFoundCount,
		a.ErrorCount,
		a.Bundle.Hash,
		a.Bundle.Name,
		a.Bundle.Mime,
		a.CreatedAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert archive: %w", err)
	}
	return nil
}

const archiveColumns = `id, tracker_id, username, group_id, site_count, found_count, not_found_count, error_count,
bundle_hash, bundle_name, bundle_mime, created_at`

// GetByTracker returns the archive recorded for a tracker id.
func (s *ArchiveStore) GetByTracker(ctx context.Context, trackerID string) (profiler.Archive, error) {
	query := fmt.Sprintf(`SELECT %s FROM archives WHERE tracker_id = $1`, archiveColumns)
	archive, err := scanArchive(s.q.QueryRow(ctx, query, trackerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return profiler.Archive{}, profiler.ErrNotFound
	}
	if err != nil {
		return profiler.Archive{}, fmt.Errorf("get archive: %w", err)
	}
	return archive, nil
}

// ListByUsername returns the archives recorded for a username, newest first.
func (s *ArchiveStore) ListByUsername(ctx context.Context, username string) ([]profiler.Archive, error) {
	query := fmt.Sprintf(`SELECT %s FROM archives WHERE username = $1 ORDER BY id DESC`, archiveColumns)
	rows, err := s.q.Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	defer rows.Close()

	var out []profiler.Archive
	for rows.Next() {
		archive, err := scanArchive(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archive: %w", err)
		}
		out = append(out, archive)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list archives: %w", err)
	}
	return out, nil
}

func scanArchive(row pgx.Row) (profiler.Archive, error) {
	var a profiler.Archive
	err := row.Scan(
		&a.ID,
		&a.TrackerID,
		&a.Username,
		&a.GroupID,
		&a.SiteCount,
		&a.FoundCount,
		&a.NotFoundCount,
		&a.ErrorCount,
		&a.Bundle.Hash,
		&a.Bundle.Name,
		&a.Bundle.Mime,
		&a.CreatedAt,
	)
	return a, err
}
