// Package splash implements the render client against a Splash-compatible
// headless rendering service. One HTTP call returns the rendered HTML, the
// upstream status, and a PNG capture of the page.
package splash

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

// serviceTimeoutMargin is subtracted from the caller's deadline when deriving
// the timeout forwarded to the rendering service, so that "service
// unreachable" stays distinguishable from "service reported a timeout".
const serviceTimeoutMargin = 2 * time.Second

// Config controls the Splash client.
type Config struct {
	// BaseURL is the root of the rendering service, e.g. http://splash:8050.
	BaseURL string
	// UserAgent is forwarded to the rendered page.
	UserAgent string
	// ConnectTimeout bounds dialing the rendering service.
	ConnectTimeout time.Duration
	// DefaultTimeout is the resource timeout used when the caller's context
	// carries no deadline.
	DefaultTimeout time.Duration
}

// Client implements profiler.RenderClient over HTTP.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// renderPayload is the JSON body returned by the rendering service.
type renderPayload struct {
	HTML       string `json:"html"`
	PNG        string `json:"png"`
	HTTPStatus int    `json:"http_status"`
}

// errorPayload is the structured error body for non-2xx service responses.
type errorPayload struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// New constructs a Client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		logger: logger,
	}, nil
}

// Render asks the service to load the site's page for the username. Failures
// are classified into the outcome; Render itself never persists anything.
func (c *Client) Render(ctx context.Context, site profiler.Site, username string) profiler.RenderOutcome {
	pageURL := site.SearchURL(username)
	outcome := profiler.RenderOutcome{URL: pageURL}

	serviceTimeout := c.serviceTimeout(ctx)

	endpoint := fmt.Sprintf(
		"%s/render.json?url=%s&html=1&png=1&width=320&height=240",
		c.cfg.BaseURL, url.QueryEscape(pageURL),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		outcome.Err = "invalid target URL"
		return outcome
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	req.Header.Set("X-Splash-Render", "render.json")
	req.Header.Set("X-Splash-Timeout", strconv.Itoa(int(serviceTimeout.Seconds())))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		outcome.Duration = time.Since(start)
		if ctx.Err() != nil {
			outcome.Err = fmt.Sprintf("request timed out (limit %ds)", int(serviceTimeout.Seconds())+int(serviceTimeoutMargin.Seconds()))
			return outcome
		}
		outcome.Err = "rendering service unreachable"
		return outcome
	}
	defer resp.Body.Close() //nolint:errcheck // read path, close error not actionable
	outcome.Duration = time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		outcome.Err = "rendering service response truncated"
		return outcome
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome.Err = serviceError(resp.StatusCode, body)
		return outcome
	}

	var payload renderPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		outcome.Err = "rendering service returned malformed JSON"
		return outcome
	}

	image, err := base64.StdEncoding.DecodeString(payload.PNG)
	if err != nil {
		outcome.Err = "rendering service returned malformed capture"
		return outcome
	}

	outcome.StatusCode = payload.HTTPStatus
	outcome.HTML = payload.HTML
	outcome.Image = image
	c.logger.Debug("page rendered",
		zap.String("url", pageURL),
		zap.Int("status", outcome.StatusCode),
		zap.Duration("duration", outcome.Duration),
	)
	return outcome
}

// serviceTimeout derives the downstream resource timeout from the caller's
// deadline, staying below it by a margin.
func (c *Client) serviceTimeout(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return c.cfg.DefaultTimeout
	}
	remaining := time.Until(deadline) - serviceTimeoutMargin
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

func serviceError(status int, body []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err == nil && payload.Description != "" {
		return payload.Description
	}
	return fmt.Sprintf("rendering service error (HTTP %d)", status)
}
