// Package probe implements a render client that fetches pages with a plain
// HTTP scraper instead of a browser. It returns no capture, so downstream
// consumers fall back to the placeholder image. Suitable for sites whose
// match rules do not depend on JavaScript.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

// Config controls the probe client.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string
	// RequestTimeout bounds a single page fetch.
	RequestTimeout time.Duration
	// MaxParallel bounds concurrent fetches per domain.
	MaxParallel int
}

// Client implements profiler.RenderClient over a Colly collector.
type Client struct {
	base   *colly.Collector
	logger *zap.Logger
}

type fetchResult struct {
	status int
	body   []byte
	err    error
}

// New constructs a probe client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []colly.CollectorOption{
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
	}
	base := colly.NewCollector(opts...)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.RequestTimeout)

	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.MaxParallel,
	}); err != nil {
		return nil, err
	}

	return &Client{
		base:   base,
		logger: logger,
	}, nil
}

// Render fetches the site's page for the username. Non-2xx statuses are still
// successful renders; only transport failures populate the outcome error.
func (c *Client) Render(ctx context.Context, site profiler.Site, username string) profiler.RenderOutcome {
	pageURL := site.SearchURL(username)
	outcome := profiler.RenderOutcome{URL: pageURL}

	collector := c.base.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{
			status: r.StatusCode,
			body:   append([]byte{}, r.Body...),
		})
	})
	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown fetch error")
		}
		// Colly reports HTTP error statuses through OnError with the
		// response attached. Those are renders, not failures.
		if r != nil && r.StatusCode != 0 {
			send(fetchResult{
				status: r.StatusCode,
				body:   append([]byte{}, r.Body...),
			})
			return
		}
		send(fetchResult{err: err})
	})

	start := time.Now()
	if err := collector.Visit(pageURL); err != nil {
		outcome.Err = fmt.Sprintf("invalid target URL: %v", err)
		return outcome
	}
	collector.Wait()
	outcome.Duration = time.Since(start)

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			outcome.Err = classify(err)
			return outcome
		}
		if res.err != nil {
			outcome.Err = classify(res.err)
			return outcome
		}
		outcome.StatusCode = res.status
		outcome.HTML = string(res.body)
		c.logger.Debug("page fetched",
			zap.String("url", pageURL),
			zap.Int("status", outcome.StatusCode),
			zap.Duration("duration", outcome.Duration),
		)
		return outcome
	default:
		outcome.Err = "fetch produced no result"
		return outcome
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		return fmt.Sprintf("fetch failed: %v", err)
	}
}
