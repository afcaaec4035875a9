// Package tracker coordinates job completion across concurrent site checks.
// Every recorded result advances a shared counter; the caller that lands the
// final increment triggers archive creation, so the archive is built exactly
// once per job no matter how many workers race.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

// Notification channels.
const (
	ChannelResult  = "result"
	ChannelTracker = "tracker"
	ChannelArchive = "archive"
)

// Job describes one username search being tracked.
type Job struct {
	TrackerID string
	Username  string
	GroupID   *int64
	Total     int
}

// Archiver builds the persisted archive for a completed job.
type Archiver interface {
	Build(ctx context.Context, job Job) (profiler.Archive, error)
}

// Progress is the payload published after each recorded result.
type Progress struct {
	TrackerID string           `json:"tracker_id"`
	Status    string           `json:"status"`
	Current   int              `json:"current"`
	Total     int              `json:"total"`
	Progress  float64          `json:"progress"`
	Result    *profiler.Result `json:"result,omitempty"`
}

// Tracker records results against registered jobs.
type Tracker struct {
	trackers  profiler.TrackerStore
	results   profiler.ResultStore
	publisher profiler.Publisher
	archiver  Archiver
	clock     profiler.Clock
	logger    *zap.Logger

	mu   sync.RWMutex
	jobs map[string]Job
}

// New constructs a Tracker. The archiver may be nil for trackers that never
// produce archives, such as site validation runs.
func New(
	trackers profiler.TrackerStore,
	results profiler.ResultStore,
	publisher profiler.Publisher,
	archiver Archiver,
	clock profiler.Clock,
	logger *zap.Logger,
) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		trackers:  trackers,
		results:   results,
		publisher: publisher,
		archiver:  archiver,
		clock:     clock,
		logger:    logger,
		jobs:      make(map[string]Job),
	}
}

// Register creates the completion counter for a job. Registering the same
// tracker id twice returns profiler.ErrTrackerExists.
func (t *Tracker) Register(ctx context.Context, job Job) error {
	if job.TrackerID == "" {
		return fmt.Errorf("tracker id is required")
	}
	if job.Total <= 0 {
		return fmt.Errorf("job total must be positive, got %d", job.Total)
	}
	if err := t.trackers.Register(ctx, job.TrackerID, job.Total); err != nil {
		return err
	}
	t.mu.Lock()
	t.jobs[job.TrackerID] = job
	t.mu.Unlock()

	t.publish(ctx, ChannelTracker, Progress{
		TrackerID: job.TrackerID,
		Status:    "created",
		Total:     job.Total,
	})
	return nil
}

// Lookup returns the in-flight job registered under a tracker id. Completed
// jobs are gone.
func (t *Tracker) Lookup(trackerID string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[trackerID]
	return job, ok
}

// Record persists one result and advances the job counter. The result is
// stored before the counter moves, so any observer that sees the new count
// can already read the result. A duplicate (tracker id, site url) insert is a
// no-op: the counter does not advance and no notification goes out.
func (t *Tracker) Record(ctx context.Context, result *profiler.Result) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = t.clock.Now()
	}
	if err := t.results.Insert(ctx, result); err != nil {
		if errors.Is(err, profiler.ErrDuplicateResult) {
			t.logger.Debug("duplicate result skipped",
				zap.String("tracker_id", result.TrackerID),
				zap.String("site_url", result.SiteURL),
			)
			return nil
		}
		return fmt.Errorf("insert result: %w", err)
	}

	current, total, err := t.trackers.Increment(ctx, result.TrackerID)
	if err != nil {
		return fmt.Errorf("increment tracker: %w", err)
	}

	progress := Progress{
		TrackerID: result.TrackerID,
		Status:    "progress",
		Current:   current,
		Total:     total,
		Progress:  float64(current) / float64(total),
		Result:    result,
	}
	if current == total {
		progress.Status = "done"
	}
	t.publish(ctx, ChannelResult, progress)
	t.publish(ctx, ChannelTracker, progress)

	if current == total {
		return t.complete(ctx, result.TrackerID)
	}
	return nil
}

// complete runs on the single caller that observed current == total.
func (t *Tracker) complete(ctx context.Context, trackerID string) error {
	t.mu.Lock()
	job, ok := t.jobs[trackerID]
	delete(t.jobs, trackerID)
	t.mu.Unlock()

	t.logger.Info("job complete",
		zap.String("tracker_id", trackerID),
		zap.Int("total", job.Total),
	)
	if t.archiver == nil || !ok {
		return nil
	}
	archive, err := t.archiver.Build(ctx, job)
	if err != nil {
		return fmt.Errorf("build archive for %s: %w", trackerID, err)
	}
	t.publish(ctx, ChannelArchive, archive)
	return nil
}

// publish delivers a notification on a best-effort basis. A broker outage
// must not fail result recording.
func (t *Tracker) publish(ctx context.Context, channel string, payload any) {
	if t.publisher == nil {
		return
	}
	if _, err := t.publisher.Publish(ctx, channel, payload); err != nil {
		t.logger.Warn("publish failed",
			zap.String("channel", channel),
			zap.Error(err),
		)
	}
}
