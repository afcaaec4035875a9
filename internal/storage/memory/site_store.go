// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/osintlabs/profiler/internal/profiler"
)

// SiteStore holds sites in a map.
type SiteStore struct {
	mu    sync.RWMutex
	sites map[int64]profiler.Site
}

// NewSiteStore creates a SiteStore seeded with the given sites.
func NewSiteStore(sites ...profiler.Site) *SiteStore {
	s := &SiteStore{sites: make(map[int64]profiler.Site, len(sites))}
	for _, site := range sites {
		s.sites[site.ID] = site
	}
	return s
}

// Put adds or replaces a site.
func (s *SiteStore) Put(site profiler.Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.ID] = site
}

// Get returns the site with the given id.
func (s *SiteStore) Get(_ context.Context, id int64) (profiler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[id]
	if !ok {
		return profiler.Site{}, profiler.ErrNotFound
	}
	return site, nil
}

// List returns all sites ordered by id.
func (s *SiteStore) List(_ context.Context) ([]profiler.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]profiler.Site, 0, len(s.sites))
	for _, site := range s.sites {
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListValid returns the sites that passed their last validation, ordered by id.
func (s *SiteStore) ListValid(ctx context.Context) ([]profiler.Site, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, site := range all {
		if site.Valid {
			out = append(out, site)
		}
	}
	return out, nil
}

// UpdateValidation records the outcome of a site test.
func (s *SiteStore) UpdateValidation(_ context.Context, id int64, valid bool, testedAt time.Time, posResultID, negResultID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	site, ok := s.sites[id]
	if !ok {
		return profiler.ErrNotFound
	}
	site.Valid = valid
	site.TestedAt = &testedAt
	site.TestResultPosID = &posResultID
	site.TestResultNegID = &negResultID
	s.sites[id] = site
	return nil
}
