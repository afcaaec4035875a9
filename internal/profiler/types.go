package profiler

import (
	"strings"
	"time"
)

// MatchKind selects how a site's match expression is evaluated.
type MatchKind string

// Match kinds persisted in the site store.
const (
	MatchCSS   MatchKind = "css"
	MatchText  MatchKind = "text"
	MatchXPath MatchKind = "xpath"
)

// Status classifies one site check outcome. The single-character values are
// what gets persisted and what appears in notification payloads.
type Status string

// Status values persisted in the result store.
const (
	StatusFound    Status = "f"
	StatusNotFound Status = "n"
	StatusError    Status = "e"
)

// Name returns the human-readable status label used in CSV exports.
func (s Status) Name() string {
	switch s {
	case StatusFound:
		return "Found"
	case StatusNotFound:
		return "Not Found"
	case StatusError:
		return "Error"
	default:
		return string(s)
	}
}

// Site describes one target site: where to look for a username and how to
// decide whether the rendered page means the username exists.
type Site struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Category string `json:"category"`

	// StatusCode, when non-nil, must equal the upstream response status for a
	// match. MatchKind/MatchExpr, when set, must select at least one node (or
	// a substring for text rules). At least one of the two must be set.
	StatusCode *int      `json:"status_code,omitempty"`
	MatchKind  MatchKind `json:"match_kind,omitempty"`
	MatchExpr  string    `json:"match_expr,omitempty"`

	TestUsernamePos string `json:"test_username_pos"`
	TestUsernameNeg string `json:"test_username_neg,omitempty"`

	Valid           bool       `json:"valid"`
	TestedAt        *time.Time `json:"tested_at,omitempty"`
	TestResultPosID *int64     `json:"test_result_pos_id,omitempty"`
	TestResultNegID *int64     `json:"test_result_neg_id,omitempty"`
}

// SearchURL interpolates a username into the site's URL template.
func (s Site) SearchURL(username string) string {
	return strings.Replace(s.URL, "%s", username, 1)
}

// HasRule reports whether the site carries enough configuration to ever
// classify a page.
func (s Site) HasRule() bool {
	return s.StatusCode != nil || s.MatchKind != ""
}

// RenderOutcome is the raw result of asking the rendering layer to load one
// page: the upstream status, the rendered HTML, and a PNG capture, or a
// classified fetch error.
type RenderOutcome struct {
	URL        string
	StatusCode int
	HTML       string
	Image      []byte
	Duration   time.Duration

	// Err carries the short human-readable failure cause. When non-empty the
	// other fields are meaningless and the matcher classifies the check as an
	// error outcome.
	Err string
}

// Failed reports whether the render produced an error instead of a page.
func (o RenderOutcome) Failed() bool {
	return o.Err != ""
}

// Artifact is a content-addressed binary blob. The hex SHA-256 of the content
// is the identity; name and mime type are display metadata only.
type Artifact struct {
	Hash string `json:"hash"`
	Name string `json:"name"`
	Mime string `json:"mime"`
}

// Zero reports whether the artifact reference is unset.
func (a Artifact) Zero() bool {
	return a.Hash == ""
}

// Result is one site's outcome for one search job. Immutable once written;
// unique per (tracker id, site url).
type Result struct {
	ID        int64     `json:"id"`
	TrackerID string    `json:"tracker_id"`
	SiteName  string    `json:"site_name"`
	SiteURL   string    `json:"site_url"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Image     Artifact  `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Archive is the persisted summary for one completed search job.
type Archive struct {
	ID            int64     `json:"id"`
	TrackerID     string    `json:"tracker_id"`
	Username      string    `json:"username"`
	GroupID       *int64    `json:"group_id,omitempty"`
	SiteCount     int       `json:"site_count"`
	FoundCount    int       `json:"found_count"`
	NotFoundCount int       `json:"not_found_count"`
	ErrorCount    int       `json:"error_count"`
	Bundle        Artifact  `json:"bundle"`
	CreatedAt     time.Time `json:"created_at"`
}
