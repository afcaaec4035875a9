package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Config{
		UserAgent:      "test-agent",
		RequestTimeout: 5 * time.Second,
		MaxParallel:    2,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func siteFor(base string) profiler.Site {
	return profiler.Site{
		ID:   1,
		Name: "Example",
		URL:  base + "/user/%s",
	}
}

func TestRenderSuccess(t *testing.T) {
	t.Parallel()

	var gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("<html><body>profile of alice</body></html>"))
	}))
	defer srv.Close()

	outcome := newClient(t).Render(context.Background(), siteFor(srv.URL), "alice")
	require.False(t, outcome.Failed(), outcome.Err)
	assert.Equal(t, srv.URL+"/user/alice", outcome.URL)
	assert.Equal(t, "test-agent", gotAgent)
	assert.Equal(t, http.StatusOK, outcome.StatusCode)
	assert.Contains(t, outcome.HTML, "profile of alice")
	assert.Empty(t, outcome.Image)
}

func TestRenderErrorStatusIsStillARender(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("<html><body>no such user</body></html>"))
	}))
	defer srv.Close()

	outcome := newClient(t).Render(context.Background(), siteFor(srv.URL), "alice")
	require.False(t, outcome.Failed(), outcome.Err)
	assert.Equal(t, http.StatusNotFound, outcome.StatusCode)
	assert.Contains(t, outcome.HTML, "no such user")
}

func TestRenderUnreachableHost(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	outcome := newClient(t).Render(context.Background(), siteFor(srv.URL), "alice")
	require.True(t, outcome.Failed())
	assert.Contains(t, outcome.Err, "fetch failed")
}

func TestRenderInvalidURL(t *testing.T) {
	t.Parallel()

	site := profiler.Site{ID: 1, Name: "Broken", URL: "://bad/%s"}
	outcome := newClient(t).Render(context.Background(), site, "alice")
	require.True(t, outcome.Failed())
	assert.Contains(t, outcome.Err, "invalid target URL")
}
