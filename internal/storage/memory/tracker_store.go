package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/osintlabs/profiler/internal/profiler"
)

type counter struct {
	current int
	total   int
}

// TrackerStore holds completion counters guarded by a mutex, so concurrent
// increments each observe a distinct value.
type TrackerStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

// NewTrackerStore creates an empty TrackerStore.
func NewTrackerStore() *TrackerStore {
	return &TrackerStore{counters: make(map[string]*counter)}
}

// Register creates the counter for a tracker id.
func (s *TrackerStore) Register(_ context.Context, trackerID string, total int) error {
	if total <= 0 {
		return fmt.Errorf("total must be positive, got %d", total)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.counters[trackerID]; ok {
		return profiler.ErrTrackerExists
	}
	s.counters[trackerID] = &counter{total: total}
	return nil
}

// Increment advances the counter and returns the new current value and the
// registered total.
func (s *TrackerStore) Increment(_ context.Context, trackerID string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[trackerID]
	if !ok {
		return 0, 0, profiler.ErrNotFound
	}
	c.current++
	return c.current, c.total, nil
}
