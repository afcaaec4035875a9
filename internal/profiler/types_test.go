package profiler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSiteSearchURL(t *testing.T) {
	t.Parallel()

	s := Site{URL: "https://example.com/users/%s/profile"}
	require.Equal(t, "https://example.com/users/jdoe/profile", s.SearchURL("jdoe"))
}

func TestSiteSearchURLReplacesFirstPlaceholderOnly(t *testing.T) {
	t.Parallel()

	s := Site{URL: "https://%s.example.com/%s"}
	require.Equal(t, "https://jdoe.example.com/%s", s.SearchURL("jdoe"))
}

func TestSiteHasRule(t *testing.T) {
	t.Parallel()

	code := 200
	require.False(t, Site{}.HasRule())
	require.True(t, Site{StatusCode: &code}.HasRule())
	require.True(t, Site{MatchKind: MatchText, MatchExpr: "Welcome"}.HasRule())
}

func TestStatusName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Found", StatusFound.Name())
	require.Equal(t, "Not Found", StatusNotFound.Name())
	require.Equal(t, "Error", StatusError.Name())
}
