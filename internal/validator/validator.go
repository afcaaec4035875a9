// Package validator runs site self-tests: a site is trusted for real
// searches only while a known-present username classifies as found and a
// random username classifies as not found.
package validator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/id"
	"github.com/osintlabs/profiler/internal/orchestrator"
	"github.com/osintlabs/profiler/internal/profiler"
)

// Validator tests sites and records the outcome.
type Validator struct {
	sites   profiler.SiteStore
	results profiler.ResultStore
	orch    *orchestrator.Orchestrator
	ids     *id.Generator
	clock   profiler.Clock
	logger  *zap.Logger
}

// New constructs a Validator.
func New(
	sites profiler.SiteStore,
	results profiler.ResultStore,
	orch *orchestrator.Orchestrator,
	ids *id.Generator,
	clock profiler.Clock,
	logger *zap.Logger,
) (*Validator, error) {
	if sites == nil || results == nil || orch == nil || ids == nil || clock == nil {
		return nil, fmt.Errorf("site store, result store, orchestrator, id generator, and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		sites:   sites,
		results: results,
		orch:    orch,
		ids:     ids,
		clock:   clock,
		logger:  logger,
	}, nil
}

// TestSite runs both probes against one site, persists the audit results
// under isolated test tracker ids, updates the site's validation state, and
// returns the refreshed site. The probes never touch user-facing trackers or
// archives.
func (v *Validator) TestSite(ctx context.Context, siteID int64) (profiler.Site, error) {
	site, err := v.sites.Get(ctx, siteID)
	if err != nil {
		return profiler.Site{}, err
	}
	if site.TestUsernamePos == "" {
		return profiler.Site{}, fmt.Errorf("site %q has no known-present test username", site.Name)
	}

	negUsername := site.TestUsernameNeg
	if negUsername == "" {
		negUsername, err = v.ids.NewNegativeUsername()
		if err != nil {
			return profiler.Site{}, fmt.Errorf("generate negative username: %w", err)
		}
	}

	posResult, err := v.probe(ctx, site, site.TestUsernamePos)
	if err != nil {
		return profiler.Site{}, err
	}
	negResult, err := v.probe(ctx, site, negUsername)
	if err != nil {
		return profiler.Site{}, err
	}

	valid := posResult.Status == profiler.StatusFound && negResult.Status == profiler.StatusNotFound
	if err := v.sites.UpdateValidation(ctx, site.ID, valid, v.clock.Now(), posResult.ID, negResult.ID); err != nil {
		return profiler.Site{}, fmt.Errorf("record validation: %w", err)
	}

	v.logger.Info("site tested",
		zap.String("site", site.Name),
		zap.Bool("valid", valid),
		zap.String("pos_status", posResult.Status.Name()),
		zap.String("neg_status", negResult.Status.Name()),
	)
	return v.sites.Get(ctx, site.ID)
}

// probe runs one single-site check under a fresh test tracker id and persists
// the audit result.
func (v *Validator) probe(ctx context.Context, site profiler.Site, username string) (profiler.Result, error) {
	trackerID := v.ids.NewTestTrackerID()

	var result *profiler.Result
	v.orch.Run(ctx, trackerID, username, []profiler.Site{site}, func(r *profiler.Result) {
		result = r
	})
	if result == nil {
		return profiler.Result{}, fmt.Errorf("probe of %q produced no result", site.Name)
	}
	if err := v.results.Insert(ctx, result); err != nil {
		return profiler.Result{}, fmt.Errorf("persist probe result: %w", err)
	}
	return *result, nil
}
