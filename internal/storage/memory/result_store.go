package memory

import (
	"context"
	"sync"

	"github.com/osintlabs/profiler/internal/profiler"
)

type resultKey struct {
	trackerID string
	siteURL   string
}

// ResultStore holds results in insertion order with sequential ids.
type ResultStore struct {
	mu      sync.RWMutex
	nextID  int64
	results []profiler.Result
	seen    map[resultKey]struct{}
}

// NewResultStore creates an empty ResultStore.
func NewResultStore() *ResultStore {
	return &ResultStore{
		nextID: 1,
		seen:   make(map[resultKey]struct{}),
	}
}

// Insert stores the result and assigns its id. A repeated (tracker id, site
// url) pair returns profiler.ErrDuplicateResult without storing anything.
func (s *ResultStore) Insert(_ context.Context, r *profiler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := resultKey{trackerID: r.TrackerID, siteURL: r.SiteURL}
	if _, ok := s.seen[key]; ok {
		return profiler.ErrDuplicateResult
	}
	r.ID = s.nextID
	s.nextID++
	s.seen[key] = struct{}{}
	s.results = append(s.results, *r)
	return nil
}

// ListByTracker returns the results recorded for a tracker id, in insertion
// order.
func (s *ResultStore) ListByTracker(_ context.Context, trackerID string) ([]profiler.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []profiler.Result
	for _, r := range s.results {
		if r.TrackerID == trackerID {
			out = append(out, r)
		}
	}
	return out, nil
}

// All returns every stored result in insertion order.
func (s *ResultStore) All() []profiler.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]profiler.Result, len(s.results))
	copy(out, s.results)
	return out
}

// Len reports how many results are stored.
func (s *ResultStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.results)
}
