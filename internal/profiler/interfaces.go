package profiler

import (
	"context"
	"errors"
	"time"
)

// Store sentinel errors shared by the memory and Postgres implementations.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateResult is returned when a result for (tracker id, site url)
	// already exists. Callers treat it as a benign no-op so counters cannot
	// overshoot.
	ErrDuplicateResult = errors.New("duplicate result")
	// ErrTrackerExists is returned on repeated registration of a tracker id.
	ErrTrackerExists = errors.New("tracker already registered")
)

// RenderClient loads the page a site would show for a username and returns
// the raw outcome. Implementations never persist anything; failures are
// reported inside the outcome, not as an error return, so a broken site can
// never abort a batch.
type RenderClient interface {
	Render(ctx context.Context, site Site, username string) RenderOutcome
}

// ContentStore persists content-addressed artifacts.
type ContentStore interface {
	// Put stores the bytes under their hash-derived path, skipping the write
	// when identical content already exists, and returns the reference.
	Put(ctx context.Context, data []byte, name, mime string) (Artifact, error)
	// Open returns the stored content for an artifact.
	Open(ctx context.Context, a Artifact) ([]byte, error)
	// PathOf derives the storage path for an artifact reference.
	PathOf(a Artifact) string
	// Placeholder returns the canonical failure-capture artifact, storing it
	// on first use.
	Placeholder(ctx context.Context) (Artifact, error)
}

// SiteStore reads and updates site rules. Creation and general editing belong
// to the CRUD layer; the engine only lists sites and records validation
// outcomes.
type SiteStore interface {
	Get(ctx context.Context, id int64) (Site, error)
	List(ctx context.Context) ([]Site, error)
	ListValid(ctx context.Context) ([]Site, error)
	UpdateValidation(ctx context.Context, id int64, valid bool, testedAt time.Time, posResultID, negResultID int64) error
}

// ResultStore persists per-site results.
type ResultStore interface {
	// Insert stores a result and assigns its ID. Returns ErrDuplicateResult
	// when (tracker id, site url) was already recorded.
	Insert(ctx context.Context, r *Result) error
	ListByTracker(ctx context.Context, trackerID string) ([]Result, error)
}

// ArchiveStore persists per-job archive summaries.
type ArchiveStore interface {
	Insert(ctx context.Context, a *Archive) error
	GetByTracker(ctx context.Context, trackerID string) (Archive, error)
	ListByUsername(ctx context.Context, username string) ([]Archive, error)
}

// TrackerStore holds the cross-worker completion counters. Increment must be
// atomic: concurrent callers each observe a distinct counter value, and
// exactly one observes current == total.
type TrackerStore interface {
	// Register creates the counter with a fixed total. Returns
	// ErrTrackerExists when the id was already registered.
	Register(ctx context.Context, trackerID string, total int) error
	// Increment advances the counter by one and returns the new current value
	// together with the registered total.
	Increment(ctx context.Context, trackerID string) (current, total int, err error)
}

// Publisher pushes JSON notification payloads to a named channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload any) (string, error)
}

// Hasher computes digests for content addressing.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
