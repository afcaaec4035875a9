// Package chromedp implements the render client with an in-process headless
// browser. It is the fallback for deployments without a rendering service.
package chromedp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

const (
	captureWidth  = 320
	captureHeight = 240
)

// Config controls the headless render client.
type Config struct {
	// MaxParallel bounds concurrent browser tabs. Zero means unbounded.
	MaxParallel int
	// UserAgent overrides the browser user agent when non-empty.
	UserAgent string
	// NavigationTimeout bounds a single page load when the caller's context
	// carries no deadline.
	NavigationTimeout time.Duration
}

// Client implements profiler.RenderClient using chromedp.
type Client struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger
}

// New creates a headless render client backed by chromedp.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(captureWidth, captureHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Client{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
	}, nil
}

// Close cancels the allocator context.
func (c *Client) Close() {
	c.allocCancel()
}

// Render navigates a browser tab to the site's page for the username and
// returns the rendered DOM, document status, and a viewport capture. All
// failures are classified into the outcome.
func (c *Client) Render(ctx context.Context, site profiler.Site, username string) profiler.RenderOutcome {
	pageURL := site.SearchURL(username)
	outcome := profiler.RenderOutcome{URL: pageURL}

	if err := c.acquire(ctx); err != nil {
		outcome.Err = "request timed out waiting for a browser slot"
		return outcome
	}
	defer c.release()

	taskCtx, taskCancel := chromedp.NewContext(c.allocator)
	defer taskCancel()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.NavigationTimeout)
		defer cancel()
	}
	taskCtx, cancel := contextWithDeadlineFrom(taskCtx, ctx)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, image, err := c.runHeadless(taskCtx, pageURL)
	outcome.Duration = time.Since(start)
	if err != nil {
		outcome.Err = classify(err)
		return outcome
	}

	outcome.StatusCode = meta.statusOr(http.StatusOK)
	outcome.HTML = html
	outcome.Image = image
	c.logger.Debug("page rendered",
		zap.String("url", pageURL),
		zap.Int("status", outcome.StatusCode),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome
}

func (c *Client) runHeadless(ctx context.Context, pageURL string) (string, []byte, error) {
	var (
		html  string
		image []byte
	)
	actions := []chromedp.Action{
		c.networkSetupAction(),
		chromedp.EmulateViewport(captureWidth, captureHeight),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.CaptureScreenshot(&image),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", nil, fmt.Errorf("chromedp run: %w", err)
	}
	return html, image, nil
}

func (c *Client) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

func (c *Client) acquire(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	select {
	case c.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	if c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
	}
}

func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	if errors.Is(err, context.Canceled) {
		return "request canceled"
	}
	return fmt.Sprintf("browser navigation failed: %v", err)
}

// contextWithDeadlineFrom applies the deadline of src to ctx so the chromedp
// task lineage stays rooted in the allocator while the caller's deadline still
// bounds the load.
func contextWithDeadlineFrom(ctx, src context.Context) (context.Context, context.CancelFunc) {
	if deadline, ok := src.Deadline(); ok {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithCancel(ctx)
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok {
		return
	}
	if resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.mu.Unlock()
}

func (m *responseMeta) statusOr(fallback int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status == 0 {
		return fallback
	}
	return m.status
}
