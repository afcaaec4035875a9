// Package content implements the content-addressable artifact store. The hex
// SHA-256 of a blob determines its storage path: the first two hex characters
// become two levels of directories and the remainder is the file name, so a
// blob with hash e3b0c4... lives at e/3/b0c4.... Identical content is written
// at most once.
package content

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/profiler"
)

// Generic capture shown for checks that produced no real screenshot
// (1x1 transparent PNG).
const placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJ" +
	"AAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

// PlaceholderName is the display name of the canonical failure capture.
const PlaceholderName = "no-capture.png"

// ObjectStore is the physical backend for content-addressed blobs.
type ObjectStore interface {
	Exists(ctx context.Context, objectPath string) (bool, error)
	Write(ctx context.Context, objectPath, contentType string, data []byte) error
	Read(ctx context.Context, objectPath string) ([]byte, error)
}

// Store derives artifact identities and delegates the bytes to an ObjectStore.
type Store struct {
	objects ObjectStore
	hasher  profiler.Hasher
	logger  *zap.Logger
}

// New constructs a Store.
func New(objects ObjectStore, hasher profiler.Hasher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{objects: objects, hasher: hasher, logger: logger}
}

// PathFor derives the storage path for a hex hash.
func PathFor(hash string) string {
	if len(hash) < 3 {
		return hash
	}
	return path.Join(hash[0:1], hash[1:2], hash[2:])
}

// Put stores the bytes under their hash-derived path and returns the artifact
// reference. Writing is idempotent: when the derived path already exists the
// write is skipped. A racing double-write is benign because content at a given
// path never differs.
func (s *Store) Put(ctx context.Context, data []byte, name, mime string) (profiler.Artifact, error) {
	hash, err := s.hasher.Hash(data)
	if err != nil {
		return profiler.Artifact{}, fmt.Errorf("hash content: %w", err)
	}
	objectPath := PathFor(hash)

	exists, err := s.objects.Exists(ctx, objectPath)
	if err != nil {
		return profiler.Artifact{}, fmt.Errorf("stat %s: %w", objectPath, err)
	}
	if !exists {
		if err := s.objects.Write(ctx, objectPath, mime, data); err != nil {
			return profiler.Artifact{}, fmt.Errorf("write %s: %w", objectPath, err)
		}
		s.logger.Debug("artifact stored",
			zap.String("hash", hash),
			zap.String("name", name),
			zap.Int("bytes", len(data)),
		)
	}

	return profiler.Artifact{Hash: hash, Name: name, Mime: mime}, nil
}

// Open returns the stored content for an artifact.
func (s *Store) Open(ctx context.Context, a profiler.Artifact) ([]byte, error) {
	data, err := s.objects.Read(ctx, s.PathOf(a))
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", a.Hash, err)
	}
	return data, nil
}

// PathOf derives the storage path for an artifact reference.
func (s *Store) PathOf(a profiler.Artifact) string {
	return PathFor(a.Hash)
}

// Placeholder stores (on first use) and returns the canonical failure capture
// used when a site check produced no real screenshot.
func (s *Store) Placeholder(ctx context.Context) (profiler.Artifact, error) {
	data, err := base64.StdEncoding.DecodeString(placeholderPNG)
	if err != nil {
		return profiler.Artifact{}, fmt.Errorf("decode placeholder: %w", err)
	}
	return s.Put(ctx, data, PlaceholderName, "image/png")
}
