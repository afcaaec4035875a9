package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/archive"
	"github.com/osintlabs/profiler/internal/content"
	contentmemory "github.com/osintlabs/profiler/internal/content/memory"
	"github.com/osintlabs/profiler/internal/hash/sha256"
	"github.com/osintlabs/profiler/internal/id"
	"github.com/osintlabs/profiler/internal/orchestrator"
	"github.com/osintlabs/profiler/internal/profiler"
	pubmemory "github.com/osintlabs/profiler/internal/publisher/memory"
	"github.com/osintlabs/profiler/internal/storage/memory"
	"github.com/osintlabs/profiler/internal/tracker"
	"github.com/osintlabs/profiler/internal/validator"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// usernameRender reports found only for usernames in its set.
type usernameRender struct {
	known map[string]struct{}
}

func (r usernameRender) Render(_ context.Context, site profiler.Site, username string) profiler.RenderOutcome {
	outcome := profiler.RenderOutcome{URL: site.SearchURL(username)}
	if _, ok := r.known[username]; ok {
		outcome.StatusCode = 200
		outcome.HTML = "<html><body><div class=\"profile\">" + username + "</div></body></html>"
		return outcome
	}
	outcome.StatusCode = 404
	outcome.HTML = "<html><body>gone</body></html>"
	return outcome
}

type fixture struct {
	engine   *Engine
	sites    *memory.SiteStore
	results  *memory.ResultStore
	archives *memory.ArchiveStore
	pub      *pubmemory.Publisher
}

func newFixture(t *testing.T, render profiler.RenderClient, sites ...profiler.Site) *fixture {
	t.Helper()

	clock := fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	siteStore := memory.NewSiteStore(sites...)
	resultStore := memory.NewResultStore()
	archiveStore := memory.NewArchiveStore()
	contentStore := content.New(contentmemory.New(), sha256.New(), zap.NewNop())
	pub := pubmemory.New()

	orch, err := orchestrator.New(render, contentStore, clock, orchestrator.Config{Concurrency: 4}, zap.NewNop())
	require.NoError(t, err)

	builder, err := archive.NewBuilder(resultStore, archiveStore, contentStore, clock, zap.NewNop())
	require.NoError(t, err)

	trk := tracker.New(memory.NewTrackerStore(), resultStore, pub, builder, clock, zap.NewNop())

	val, err := validator.New(siteStore, resultStore, orch, id.New(), clock, zap.NewNop())
	require.NoError(t, err)

	eng, err := New(siteStore, resultStore, archiveStore, orch, trk, val, id.New(), zap.NewNop())
	require.NoError(t, err)

	return &fixture{engine: eng, sites: siteStore, results: resultStore, archives: archiveStore, pub: pub}
}

func validSite(id int64, name, url string, code int) profiler.Site {
	return profiler.Site{
		ID: id, Name: name, URL: url, StatusCode: &code,
		MatchKind: profiler.MatchCSS, MatchExpr: "div.profile",
		TestUsernamePos: "realuser", Valid: true,
	}
}

func waitForArchive(t *testing.T, f *fixture, trackerID string) profiler.Archive {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		archive, err := f.engine.Archive(context.Background(), trackerID)
		if err == nil {
			return archive
		}
		select {
		case <-deadline:
			t.Fatalf("archive for %s never appeared", trackerID)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSearchRunsToCompletion(t *testing.T) {
	t.Parallel()

	render := usernameRender{known: map[string]struct{}{"alice": {}}}
	f := newFixture(t, render,
		validSite(1, "Alpha", "https://alpha.example/%s", 200),
		validSite(2, "Beta", "https://beta.example/%s", 200),
	)

	job, err := f.engine.Search(context.Background(), SearchRequest{Username: "alice"})
	require.NoError(t, err)
	assert.NotEmpty(t, job.TrackerID)
	assert.Equal(t, 2, job.Total)

	archive := waitForArchive(t, f, job.TrackerID)
	assert.Equal(t, "alice", archive.Username)
	assert.Equal(t, 2, archive.SiteCount)
	assert.Equal(t, 2, archive.FoundCount)

	results, err := f.engine.Results(context.Background(), job.TrackerID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	byUser, err := f.engine.Archives(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, byUser, 1)
}

func TestSearchUnknownUsernameYieldsNotFound(t *testing.T) {
	t.Parallel()

	render := usernameRender{known: map[string]struct{}{}}
	f := newFixture(t, render, validSite(1, "Alpha", "https://alpha.example/%s", 200))

	job, err := f.engine.Search(context.Background(), SearchRequest{Username: "ghost"})
	require.NoError(t, err)

	archive := waitForArchive(t, f, job.TrackerID)
	assert.Equal(t, 1, archive.NotFoundCount)
	assert.Zero(t, archive.FoundCount)
}

func TestSearchDuplicateTrackerIsNoOp(t *testing.T) {
	t.Parallel()

	render := usernameRender{known: map[string]struct{}{"alice": {}}}
	f := newFixture(t, render, validSite(1, "Alpha", "https://alpha.example/%s", 200))

	first, err := f.engine.Search(context.Background(), SearchRequest{Username: "alice", TrackerID: "tracker.fixed12345"})
	require.NoError(t, err)
	waitForArchive(t, f, first.TrackerID)

	second, err := f.engine.Search(context.Background(), SearchRequest{Username: "alice", TrackerID: "tracker.fixed12345"})
	require.NoError(t, err)
	assert.Equal(t, first.TrackerID, second.TrackerID)

	// No second run: still exactly one result and one archive.
	time.Sleep(50 * time.Millisecond)
	results, err := f.engine.Results(context.Background(), first.TrackerID)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

type renderFunc func(ctx context.Context, site profiler.Site, username string) profiler.RenderOutcome

func (f renderFunc) Render(ctx context.Context, site profiler.Site, username string) profiler.RenderOutcome {
	return f(ctx, site, username)
}

func TestSearchDuplicateEchoesRegisteredTotal(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	render := renderFunc(func(ctx context.Context, site profiler.Site, username string) profiler.RenderOutcome {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return profiler.RenderOutcome{
			URL:        site.SearchURL(username),
			StatusCode: 200,
			HTML:       "<html><body><div class=\"profile\">" + username + "</div></body></html>",
		}
	})
	f := newFixture(t, render,
		validSite(1, "Alpha", "https://alpha.example/%s", 200),
		validSite(2, "Beta", "https://beta.example/%s", 200),
	)

	first, err := f.engine.Search(context.Background(), SearchRequest{Username: "alice", TrackerID: "tracker.fixed12345"})
	require.NoError(t, err)
	require.Equal(t, 2, first.Total)

	// Shrink the valid-site set while the job is in flight. The duplicate
	// echo must report the total the job was registered with.
	require.NoError(t, f.sites.UpdateValidation(context.Background(), 2, false, time.Now(), 0, 0))

	second, err := f.engine.Search(context.Background(), SearchRequest{Username: "alice", TrackerID: "tracker.fixed12345"})
	require.NoError(t, err)
	assert.Equal(t, first.TrackerID, second.TrackerID)
	assert.Equal(t, first.Total, second.Total)

	close(release)
	waitForArchive(t, f, first.TrackerID)
}

func TestSearchSkipsInvalidSites(t *testing.T) {
	t.Parallel()

	invalid := validSite(2, "Broken", "https://broken.example/%s", 200)
	invalid.Valid = false

	render := usernameRender{known: map[string]struct{}{"alice": {}}}
	f := newFixture(t, render, validSite(1, "Alpha", "https://alpha.example/%s", 200), invalid)

	job, err := f.engine.Search(context.Background(), SearchRequest{Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, 1, job.Total)
}

func TestSearchRequiresUsernameAndSites(t *testing.T) {
	t.Parallel()

	f := newFixture(t, usernameRender{}, validSite(1, "Alpha", "https://alpha.example/%s", 200))
	_, err := f.engine.Search(context.Background(), SearchRequest{})
	require.Error(t, err)

	empty := newFixture(t, usernameRender{})
	_, err = empty.engine.Search(context.Background(), SearchRequest{Username: "alice"})
	require.Error(t, err)
}

func TestTestSiteThroughEngine(t *testing.T) {
	t.Parallel()

	render := usernameRender{known: map[string]struct{}{"realuser": {}}}
	site := validSite(1, "Alpha", "https://alpha.example/%s", 200)
	site.Valid = false
	f := newFixture(t, render, site)

	tested, err := f.engine.TestSite(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, tested.Valid)
}
