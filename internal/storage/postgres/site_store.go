package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/osintlabs/profiler/internal/profiler"
)

// SiteStore implements profiler.SiteStore over Postgres.
//
// Expected schema:
//
//	CREATE TABLE sites (
//	    id BIGSERIAL PRIMARY KEY,
//	    name TEXT NOT NULL UNIQUE,
//	    url TEXT NOT NULL,
//	    category TEXT NOT NULL DEFAULT '',
//	    status_code INT,
//	    match_kind TEXT NOT NULL DEFAULT '',
//	    match_expr TEXT NOT NULL DEFAULT '',
//	    test_username_pos TEXT NOT NULL,
//	    test_username_neg TEXT NOT NULL DEFAULT '',
//	    valid BOOLEAN NOT NULL DEFAULT FALSE,
//	    tested_at TIMESTAMPTZ,
//	    test_result_pos_id BIGINT,
//	    test_result_neg_id BIGINT
//	);
type SiteStore struct {
	q Querier
}

// NewSiteStore constructs a SiteStore over a querier.
func NewSiteStore(q Querier) (*SiteStore, error) {
	if q == nil {
		return nil, fmt.Errorf("querier is required")
	}
	return &SiteStore{q: q}, nil
}

const siteColumns = `id, name, url, category, status_code, match_kind, match_expr,
test_username_pos, test_username_neg, valid, tested_at, test_result_pos_id, test_result_neg_id`

// Get returns the site with the given id.
func (s *SiteStore) Get(ctx context.Context, id int64) (profiler.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE id = $1`, siteColumns)
	site, err := scanSite(s.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return profiler.Site{}, profiler.ErrNotFound
	}
	if err != nil {
		return profiler.Site{}, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

// List returns all sites ordered by id.
func (s *SiteStore) List(ctx context.Context) ([]profiler.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites ORDER BY id`, siteColumns)
	return s.list(ctx, query)
}

// ListValid returns the sites that passed their last validation, ordered by id.
func (s *SiteStore) ListValid(ctx context.Context) ([]profiler.Site, error) {
	query := fmt.Sprintf(`SELECT %s FROM sites WHERE valid ORDER BY id`, siteColumns)
	return s.list(ctx, query)
}

func (s *SiteStore) list(ctx context.Context, query string) ([]profiler.Site, error) {
	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []profiler.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	return out, nil
}

// UpdateValidation records the outcome of a site test.
func (s *SiteStore) UpdateValidation(ctx context.Context, id int64, valid bool, testedAt time.Time, posResultID, negResultID int64) error {
	query := `
UPDATE sites
SET valid = $2, tested_at = $3, test_result_pos_id = $4, test_result_neg_id = $5
WHERE id = $1`
	tag, err := s.q.Exec(ctx, query, id, valid, testedAt, posResultID, negResultID)
	if err != nil {
		return fmt.Errorf("update site validation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return profiler.ErrNotFound
	}
	return nil
}

func scanSite(row pgx.Row) (profiler.Site, error) {
	var (
		site      profiler.Site
		matchKind string
	)
	err := row.Scan(
		&site.ID,
		&site.Name,
		&site.URL,
		&site.Category,
		&site.StatusCode,
		&matchKind,
		&site.MatchExpr,
		&site.TestUsernamePos,
		&site.TestUsernameNeg,
		&site.Valid,
		&site.TestedAt,
		&site.TestResultPosID,
		&site.TestResultNegID,
	)
	if err != nil {
		return profiler.Site{}, err
	}
	site.MatchKind = profiler.MatchKind(matchKind)
	return site, nil
}
