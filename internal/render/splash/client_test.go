package splash

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

func testSite() profiler.Site {
	return profiler.Site{
		ID:   1,
		Name: "Example",
		URL:  "https://example.com/%s",
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, zap.NewNop())
	require.Error(t, err)
}

func TestRenderSuccess(t *testing.T) {
	t.Parallel()

	png := []byte{0x89, 0x50, 0x4e, 0x47}
	var gotURL, gotAgent, gotTimeout string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.Query().Get("url")
		gotAgent = r.Header.Get("User-Agent")
		gotTimeout = r.Header.Get("X-Splash-Timeout")
		assert.Equal(t, "1", r.URL.Query().Get("html"))
		assert.Equal(t, "1", r.URL.Query().Get("png"))
		assert.Equal(t, "320", r.URL.Query().Get("width"))
		assert.Equal(t, "240", r.URL.Query().Get("height"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"html":        "<html><body>alice</body></html>",
			"png":         base64.StdEncoding.EncodeToString(png),
			"http_status": 200,
		})
	}))
	defer srv.Close()

	client, err := New(Config{
		BaseURL:   srv.URL,
		UserAgent: "test-agent",
	}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	outcome := client.Render(ctx, testSite(), "alice")
	require.False(t, outcome.Failed(), outcome.Err)
	assert.Equal(t, "https://example.com/alice", gotURL)
	assert.Equal(t, "https://example.com/alice", outcome.URL)
	assert.Equal(t, "test-agent", gotAgent)
	assert.NotEmpty(t, gotTimeout)
	assert.Equal(t, 200, outcome.StatusCode)
	assert.Equal(t, "<html><body>alice</body></html>", outcome.HTML)
	assert.Equal(t, png, outcome.Image)
	assert.Greater(t, outcome.Duration, time.Duration(0))
}

func TestRenderUpstreamStatusPassedThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"html":        "<html><body>not found</body></html>",
			"png":         "",
			"http_status": 404,
		})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	outcome := client.Render(context.Background(), testSite(), "alice")
	require.False(t, outcome.Failed())
	assert.Equal(t, 404, outcome.StatusCode)
}

func TestRenderServiceError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":        "RenderError",
			"description": "Timeout exceeded rendering page",
		})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	outcome := client.Render(context.Background(), testSite(), "alice")
	require.True(t, outcome.Failed())
	assert.Equal(t, "Timeout exceeded rendering page", outcome.Err)
}

func TestRenderServiceErrorWithoutBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	outcome := client.Render(context.Background(), testSite(), "alice")
	require.True(t, outcome.Failed())
	assert.Equal(t, "rendering service error (HTTP 502)", outcome.Err)
}

func TestRenderServiceUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	outcome := client.Render(context.Background(), testSite(), "alice")
	require.True(t, outcome.Failed())
	assert.Equal(t, "rendering service unreachable", outcome.Err)
}

func TestRenderTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := client.Render(ctx, testSite(), "alice")
	require.True(t, outcome.Failed())
	assert.Contains(t, outcome.Err, "request timed out")
}

func TestRenderMalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	outcome := client.Render(context.Background(), testSite(), "alice")
	require.True(t, outcome.Failed())
	assert.Equal(t, "rendering service returned malformed JSON", outcome.Err)
}

func TestRenderMalformedCapture(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"html":        "<html></html>",
			"png":         "%%% not base64 %%%",
			"http_status": 200,
		})
	}))
	defer srv.Close()

	client, err := New(Config{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)

	outcome := client.Render(context.Background(), testSite(), "alice")
	require.True(t, outcome.Failed())
	assert.Equal(t, "rendering service returned malformed capture", outcome.Err)
}
