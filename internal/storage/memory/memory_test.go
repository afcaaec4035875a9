package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osintlabs/profiler/internal/profiler"
)

func TestSiteStoreGetAndList(t *testing.T) {
	t.Parallel()

	store := NewSiteStore(
		profiler.Site{ID: 2, Name: "B", URL: "https://b.example/%s", Valid: true},
		profiler.Site{ID: 1, Name: "A", URL: "https://a.example/%s"},
	)

	site, err := store.Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "B", site.Name)

	_, err = store.Get(context.Background(), 99)
	assert.ErrorIs(t, err, profiler.ErrNotFound)

	all, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)

	valid, err := store.ListValid(context.Background())
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "B", valid[0].Name)
}

func TestSiteStoreUpdateValidation(t *testing.T) {
	t.Parallel()

	store := NewSiteStore(profiler.Site{ID: 1, Name: "A", URL: "https://a.example/%s"})
	testedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpdateValidation(context.Background(), 1, true, testedAt, 10, 11))

	site, err := store.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, site.Valid)
	require.NotNil(t, site.TestedAt)
	assert.Equal(t, testedAt, *site.TestedAt)
	require.NotNil(t, site.TestResultPosID)
	assert.Equal(t, int64(10), *site.TestResultPosID)
	require.NotNil(t, site.TestResultNegID)
	assert.Equal(t, int64(11), *site.TestResultNegID)

	err = store.UpdateValidation(context.Background(), 99, true, testedAt, 1, 2)
	assert.ErrorIs(t, err, profiler.ErrNotFound)
}

func TestResultStoreAssignsIDsAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	first := profiler.Result{TrackerID: "tracker.aaaa", SiteURL: "https://a.example/alice", Status: profiler.StatusFound}
	require.NoError(t, store.Insert(context.Background(), &first))
	assert.Equal(t, int64(1), first.ID)

	dup := profiler.Result{TrackerID: "tracker.aaaa", SiteURL: "https://a.example/alice", Status: profiler.StatusError}
	err := store.Insert(context.Background(), &dup)
	assert.ErrorIs(t, err, profiler.ErrDuplicateResult)
	assert.Equal(t, 1, store.Len())

	other := profiler.Result{TrackerID: "tracker.bbbb", SiteURL: "https://a.example/alice", Status: profiler.StatusNotFound}
	require.NoError(t, store.Insert(context.Background(), &other))
	assert.Equal(t, int64(2), other.ID)

	results, err := store.ListByTracker(context.Background(), "tracker.aaaa")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, profiler.StatusFound, results[0].Status)
}

func TestArchiveStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewArchiveStore()
	archive := profiler.Archive{TrackerID: "tracker.aaaa", Username: "alice", SiteCount: 3}
	require.NoError(t, store.Insert(context.Background(), &archive))
	assert.Equal(t, int64(1), archive.ID)

	got, err := store.GetByTracker(context.Background(), "tracker.aaaa")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)

	_, err = store.GetByTracker(context.Background(), "tracker.none")
	assert.ErrorIs(t, err, profiler.ErrNotFound)

	second := profiler.Archive{TrackerID: "tracker.bbbb", Username: "alice", SiteCount: 5}
	require.NoError(t, store.Insert(context.Background(), &second))

	byUser, err := store.ListByUsername(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, "tracker.bbbb", byUser[0].TrackerID)
}

func TestArchiveStoreInsertIsRetrySafe(t *testing.T) {
	t.Parallel()

	store := NewArchiveStore()
	first := profiler.Archive{TrackerID: "tracker.aaaa", Username: "alice", FoundCount: 1}
	require.NoError(t, store.Insert(context.Background(), &first))

	retry := profiler.Archive{TrackerID: "tracker.aaaa", Username: "alice", FoundCount: 2}
	require.NoError(t, store.Insert(context.Background(), &retry))
	assert.Equal(t, first.ID, retry.ID)

	got, err := store.GetByTracker(context.Background(), "tracker.aaaa")
	require.NoError(t, err)
	assert.Equal(t, 2, got.FoundCount)
}

func TestTrackerStoreRegisterAndIncrement(t *testing.T) {
	t.Parallel()

	store := NewTrackerStore()
	require.NoError(t, store.Register(context.Background(), "tracker.aaaa", 2))

	err := store.Register(context.Background(), "tracker.aaaa", 2)
	assert.ErrorIs(t, err, profiler.ErrTrackerExists)

	require.Error(t, store.Register(context.Background(), "tracker.zero", 0))

	current, total, err := store.Increment(context.Background(), "tracker.aaaa")
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, 2, total)

	current, _, err = store.Increment(context.Background(), "tracker.aaaa")
	require.NoError(t, err)
	assert.Equal(t, 2, current)

	_, _, err = store.Increment(context.Background(), "tracker.none")
	assert.ErrorIs(t, err, profiler.ErrNotFound)
}

func TestTrackerStoreConcurrentIncrementsAreDistinct(t *testing.T) {
	t.Parallel()

	const total = 64
	store := NewTrackerStore()
	require.NoError(t, store.Register(context.Background(), "tracker.aaaa", total))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int]struct{}, total)
	)
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			current, _, err := store.Increment(context.Background(), "tracker.aaaa")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			seen[current] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	_, ok := seen[total]
	assert.True(t, ok, "exactly one increment must observe current == total")
}

func TestResultStoreConcurrentInserts(t *testing.T) {
	t.Parallel()

	store := NewResultStore()
	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := profiler.Result{TrackerID: "tracker.aaaa", SiteURL: "https://a.example/alice"}
			errs[i] = store.Insert(context.Background(), &r)
		}(i)
	}
	wg.Wait()

	var dups int
	for _, err := range errs {
		if errors.Is(err, profiler.ErrDuplicateResult) {
			dups++
		}
	}
	assert.Equal(t, 15, dups)
	assert.Equal(t, 1, store.Len())
}
