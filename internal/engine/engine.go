// Package engine is the service facade: it accepts username searches, runs
// them asynchronously, and exposes the read paths for results and archives.
package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/id"
	"github.com/osintlabs/profiler/internal/metrics"
	"github.com/osintlabs/profiler/internal/orchestrator"
	"github.com/osintlabs/profiler/internal/profiler"
	"github.com/osintlabs/profiler/internal/tracker"
	"github.com/osintlabs/profiler/internal/validator"
)

// SearchRequest submits one username search.
type SearchRequest struct {
	Username string `json:"username"`
	GroupID  *int64 `json:"group_id,omitempty"`
	// TrackerID lets clients supply their own id so retried submissions
	// collapse into one job. Generated when empty.
	TrackerID string `json:"tracker_id,omitempty"`
}

// SearchJob describes an accepted search.
type SearchJob struct {
	TrackerID string `json:"tracker_id"`
	Username  string `json:"username"`
	Total     int    `json:"total"`
}

// Engine wires the search pipeline together.
type Engine struct {
	sites     profiler.SiteStore
	results   profiler.ResultStore
	archives  profiler.ArchiveStore
	orch      *orchestrator.Orchestrator
	tracker   *tracker.Tracker
	validator *validator.Validator
	ids       *id.Generator
	logger    *zap.Logger
}

// New constructs an Engine.
func New(
	sites profiler.SiteStore,
	results profiler.ResultStore,
	archives profiler.ArchiveStore,
	orch *orchestrator.Orchestrator,
	trk *tracker.Tracker,
	val *validator.Validator,
	ids *id.Generator,
	logger *zap.Logger,
) (*Engine, error) {
	if sites == nil || results == nil || archives == nil || orch == nil || trk == nil || val == nil || ids == nil {
		return nil, fmt.Errorf("all engine dependencies are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Engine{
		sites:     sites,
		results:   results,
		archives:  archives,
		orch:      orch,
		tracker:   trk,
		validator: val,
		ids:       ids,
		logger:    logger,
	}, nil
}

// Search registers a job for the username across all valid sites and starts
// checking them in the background. Submitting an already-registered tracker
// id again is a no-op that returns the same job.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (SearchJob, error) {
	if req.Username == "" {
		return SearchJob{}, fmt.Errorf("username is required")
	}

	sites, err := e.sites.ListValid(ctx)
	if err != nil {
		return SearchJob{}, fmt.Errorf("list sites: %w", err)
	}
	sites = orchestrator.Dedupe(req.Username, sites)
	if len(sites) == 0 {
		return SearchJob{}, fmt.Errorf("no valid sites configured")
	}

	trackerID := req.TrackerID
	if trackerID == "" {
		trackerID = e.ids.NewTrackerID()
	}
	job := SearchJob{TrackerID: trackerID, Username: req.Username, Total: len(sites)}

	err = e.tracker.Register(ctx, tracker.Job{
		TrackerID: trackerID,
		Username:  req.Username,
		GroupID:   req.GroupID,
		Total:     len(sites),
	})
	if errors.Is(err, profiler.ErrTrackerExists) {
		// Echo the job as registered; the valid-site set may have shifted
		// since the first submission.
		if existing, ok := e.tracker.Lookup(trackerID); ok {
			job.Username = existing.Username
			job.Total = existing.Total
		}
		e.logger.Info("duplicate search submission ignored", zap.String("tracker_id", trackerID))
		return job, nil
	}
	if err != nil {
		return SearchJob{}, fmt.Errorf("register job: %w", err)
	}

	e.logger.Info("search accepted",
		zap.String("tracker_id", trackerID),
		zap.String("username", req.Username),
		zap.Int("sites", len(sites)),
	)

	// The job outlives the submitting request.
	bg := context.WithoutCancel(ctx)
	go e.run(bg, trackerID, req.Username, sites)

	return job, nil
}

func (e *Engine) run(ctx context.Context, trackerID, username string, sites []profiler.Site) {
	failed := false
	e.orch.Run(ctx, trackerID, username, sites, func(r *profiler.Result) {
		if err := e.tracker.Record(ctx, r); err != nil {
			failed = true
			e.logger.Error("record result failed",
				zap.String("tracker_id", trackerID),
				zap.String("site_url", r.SiteURL),
				zap.Error(err),
			)
		}
	})
	if failed {
		metrics.ObserveJob("failed")
		return
	}
	metrics.ObserveJob("completed")
}

// Results returns the results recorded so far for a tracker id.
func (e *Engine) Results(ctx context.Context, trackerID string) ([]profiler.Result, error) {
	return e.results.ListByTracker(ctx, trackerID)
}

// Archive returns the archive for a completed job.
func (e *Engine) Archive(ctx context.Context, trackerID string) (profiler.Archive, error) {
	return e.archives.GetByTracker(ctx, trackerID)
}

// Archives returns the archives recorded for a username, newest first.
func (e *Engine) Archives(ctx context.Context, username string) ([]profiler.Archive, error) {
	return e.archives.ListByUsername(ctx, username)
}

// TestSite runs a site self-test and returns the refreshed site.
func (e *Engine) TestSite(ctx context.Context, siteID int64) (profiler.Site, error) {
	return e.validator.TestSite(ctx, siteID)
}

// Sites returns every configured site.
func (e *Engine) Sites(ctx context.Context) ([]profiler.Site, error) {
	return e.sites.List(ctx)
}
