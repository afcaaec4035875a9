package memory

import (
	"context"
	"sync"

	"github.com/osintlabs/profiler/internal/profiler"
)

// ArchiveStore holds archives in insertion order with sequential ids.
type ArchiveStore struct {
	mu       sync.RWMutex
	nextID   int64
	archives []profiler.Archive
}

// NewArchiveStore creates an empty ArchiveStore.
func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{nextID: 1}
}

// Insert stores the archive and assigns its id. Re-inserting for a tracker id
// that already has an archive replaces the summary, keeping archive creation
// safe to retry.
func (s *ArchiveStore) Insert(_ context.Context, a *profiler.Archive) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.archives {
		if s.archives[i].TrackerID == a.TrackerID {
			a.ID = s.archives[i].ID
			s.archives[i] = *a
			return nil
		}
	}
	a.ID = s.nextID
	s.nextID++
	s.archives = append(s.archives, *a)
	return nil
}

// GetByTracker returns the archive recorded for a tracker id.
func (s *ArchiveStore) GetByTracker(_ context.Context, trackerID string) (profiler.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.archives {
		if a.TrackerID == trackerID {
			return a, nil
		}
	}
	return profiler.Archive{}, profiler.ErrNotFound
}

// ListByUsername returns the archives recorded for a username, newest first.
func (s *ArchiveStore) ListByUsername(_ context.Context, username string) ([]profiler.Archive, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []profiler.Archive
	for i := len(s.archives) - 1; i >= 0; i-- {
		if s.archives[i].Username == username {
			out = append(out, s.archives[i])
		}
	}
	return out, nil
}
