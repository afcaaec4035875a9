// Package orchestrator fans a username search out across sites with bounded
// concurrency and streams back one result per site in completion order.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/matcher"
	"github.com/osintlabs/profiler/internal/metrics"
	"github.com/osintlabs/profiler/internal/profiler"
)

// Config controls batch execution.
type Config struct {
	// Concurrency bounds parallel site checks.
	Concurrency int
	// RequestTimeout bounds one render call.
	RequestTimeout time.Duration
	// BatchDeadline bounds the whole batch. Sites still pending when it
	// expires get an error result so every site always produces exactly one.
	BatchDeadline time.Duration
}

// Orchestrator runs site checks.
type Orchestrator struct {
	render  profiler.RenderClient
	content profiler.ContentStore
	clock   profiler.Clock
	cfg     Config
	logger  *zap.Logger
}

// New constructs an Orchestrator.
func New(
	render profiler.RenderClient,
	content profiler.ContentStore,
	clock profiler.Clock,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if render == nil || content == nil || clock == nil {
		return nil, fmt.Errorf("render client, content store, and clock are required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.BatchDeadline <= 0 {
		cfg.BatchDeadline = 300 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Orchestrator{
		render:  render,
		content: content,
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Dedupe drops sites whose search URL for the username repeats an earlier
// site, preserving order. One batch never checks the same page twice.
func Dedupe(username string, sites []profiler.Site) []profiler.Site {
	seen := make(map[string]struct{}, len(sites))
	out := make([]profiler.Site, 0, len(sites))
	for _, site := range sites {
		url := site.SearchURL(username)
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, site)
	}
	return out
}

// Run checks the username against every site and calls sink with each result
// as it completes. Sink is called exactly once per site, from the calling
// goroutine. Run returns after the last sink call.
func (o *Orchestrator) Run(ctx context.Context, trackerID, username string, sites []profiler.Site, sink func(*profiler.Result)) {
	if len(sites) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.BatchDeadline)
	defer cancel()

	sem := make(chan struct{}, o.cfg.Concurrency)
	// Buffered to the batch size so a worker finishing after the deadline
	// never blocks on a collector that already left.
	results := make(chan profiler.Result, len(sites))

	for _, site := range sites {
		go func(site profiler.Site) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			results <- o.check(ctx, trackerID, username, site)
		}(site)
	}

	pending := make(map[string]profiler.Site, len(sites))
	for _, site := range sites {
		pending[site.SearchURL(username)] = site
	}

	for len(pending) > 0 {
		select {
		case r := <-results:
			if _, ok := pending[r.SiteURL]; !ok {
				continue
			}
			delete(pending, r.SiteURL)
			sink(&r)
		case <-ctx.Done():
			// Deadline hit. Every pending site still owes a result, so the
			// batch total always reconciles.
			o.logger.Warn("batch deadline exceeded",
				zap.String("tracker_id", trackerID),
				zap.Int("pending", len(pending)),
			)
			for url, site := range pending {
				delete(pending, url)
				r := o.errorResult(ctx, trackerID, site, url, "batch deadline exceeded")
				sink(&r)
			}
		}
	}
}

// check renders one site, classifies the page, and persists the capture.
func (o *Orchestrator) check(ctx context.Context, trackerID, username string, site profiler.Site) profiler.Result {
	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.RequestTimeout)
	defer cancel()

	metrics.IncActiveChecks()
	outcome := o.render.Render(reqCtx, site, username)
	metrics.DecActiveChecks()

	status, errMsg := matcher.Classify(site, outcome)

	result := profiler.Result{
		TrackerID: trackerID,
		SiteName:  site.Name,
		SiteURL:   outcome.URL,
		Status:    status,
		Error:     errMsg,
		CreatedAt: o.clock.Now(),
	}
	if result.SiteURL == "" {
		result.SiteURL = site.SearchURL(username)
	}

	image, err := o.persistCapture(ctx, site, outcome)
	result.Image = image
	if err != nil {
		// A storage failure invalidates the capture evidence; the check is
		// recorded as an error, not as the matched status.
		result.Status = profiler.StatusError
		result.Error = err.Error()
	}
	metrics.ObserveSiteCheck(result.Status.Name(), outcome.Duration)
	o.logger.Debug("site checked",
		zap.String("tracker_id", trackerID),
		zap.String("site", site.Name),
		zap.String("status", result.Status.Name()),
	)
	return result
}

// persistCapture stores the page capture, falling back to the placeholder
// when the render produced no image. A non-nil error means the artifact store
// failed and the check cannot be trusted; the returned artifact is still the
// best reference available (placeholder, or zero when even that failed).
func (o *Orchestrator) persistCapture(ctx context.Context, site profiler.Site, outcome profiler.RenderOutcome) (profiler.Artifact, error) {
	if len(outcome.Image) > 0 {
		artifact, err := o.content.Put(ctx, outcome.Image, site.Name+".png", "image/png")
		if err == nil {
			return artifact, nil
		}
		o.logger.Warn("capture store failed",
			zap.String("site", site.Name),
			zap.Error(err),
		)
		placeholder, perr := o.content.Placeholder(ctx)
		if perr != nil {
			o.logger.Warn("placeholder store failed", zap.Error(perr))
		}
		return placeholder, fmt.Errorf("store capture: %v", err)
	}
	placeholder, err := o.content.Placeholder(ctx)
	if err != nil {
		o.logger.Warn("placeholder store failed", zap.Error(err))
		return profiler.Artifact{}, fmt.Errorf("store placeholder: %v", err)
	}
	return placeholder, nil
}

func (o *Orchestrator) errorResult(ctx context.Context, trackerID string, site profiler.Site, url, cause string) profiler.Result {
	// The batch context is already expired here; the placeholder write still
	// has to go through.
	ctx = context.WithoutCancel(ctx)
	metrics.ObserveSiteCheck(profiler.StatusError.Name(), 0)
	// The result is already an error; a placeholder failure here only costs
	// the artifact reference, not the cause message.
	image, _ := o.persistCapture(ctx, site, profiler.RenderOutcome{})
	return profiler.Result{
		TrackerID: trackerID,
		SiteName:  site.Name,
		SiteURL:   url,
		Status:    profiler.StatusError,
		Error:     cause,
		Image:     image,
		CreatedAt: o.clock.Now(),
	}
}
