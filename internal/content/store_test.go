package content_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/content"
	"github.com/osintlabs/profiler/internal/content/memory"
	"github.com/osintlabs/profiler/internal/hash/sha256"
)

func newStore() (*content.Store, *memory.ObjectStore) {
	objects := memory.New()
	return content.New(objects, sha256.New(), zap.NewNop()), objects
}

func TestPutIsIdempotent(t *testing.T) {
	t.Parallel()

	store, objects := newStore()
	ctx := context.Background()

	first, err := store.Put(ctx, []byte("screenshot"), "twitter.png", "image/png")
	require.NoError(t, err)
	second, err := store.Put(ctx, []byte("screenshot"), "github.png", "image/png")
	require.NoError(t, err)

	// Identical content yields identical identity and exactly one write,
	// regardless of display name.
	require.Equal(t, first.Hash, second.Hash)
	require.Equal(t, 1, objects.Writes())
	require.Equal(t, "twitter.png", first.Name)
	require.Equal(t, "github.png", second.Name)
}

func TestPathOfIsStable(t *testing.T) {
	t.Parallel()

	store, _ := newStore()
	ctx := context.Background()

	a, err := store.Put(ctx, []byte("bundle"), "results.zip", "application/zip")
	require.NoError(t, err)
	b, err := store.Put(ctx, []byte("bundle"), "results.zip", "application/zip")
	require.NoError(t, err)
	require.Equal(t, store.PathOf(a), store.PathOf(b))

	// Two levels of hash-prefix directories, remainder as file name.
	require.Equal(t, a.Hash[0:1]+"/"+a.Hash[1:2]+"/"+a.Hash[2:], store.PathOf(a))
}

func TestOpenRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newStore()
	ctx := context.Background()

	a, err := store.Put(ctx, []byte("capture-bytes"), "site.png", "image/png")
	require.NoError(t, err)

	data, err := store.Open(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []byte("capture-bytes"), data)
}

func TestPlaceholder(t *testing.T) {
	t.Parallel()

	store, objects := newStore()
	ctx := context.Background()

	first, err := store.Placeholder(ctx)
	require.NoError(t, err)
	require.Equal(t, content.PlaceholderName, first.Name)
	require.Equal(t, "image/png", first.Mime)

	second, err := store.Placeholder(ctx)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, objects.Writes())
}
