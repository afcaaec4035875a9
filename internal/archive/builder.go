// Package archive assembles the downloadable bundle for a completed search
// job: a CSV summary plus every distinct capture, zipped and stored through
// the content store.
package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/metrics"
	"github.com/osintlabs/profiler/internal/profiler"
	"github.com/osintlabs/profiler/internal/tracker"
)

// csvHeader is the first row of the bundled summary.
var csvHeader = []string{"Site Name", "Search Url", "Status", "Screenshot"}

// Builder implements tracker.Archiver.
type Builder struct {
	results  profiler.ResultStore
	archives profiler.ArchiveStore
	content  profiler.ContentStore
	clock    profiler.Clock
	logger   *zap.Logger
}

// NewBuilder constructs a Builder.
func NewBuilder(
	results profiler.ResultStore,
	archives profiler.ArchiveStore,
	content profiler.ContentStore,
	clock profiler.Clock,
	logger *zap.Logger,
) (*Builder, error) {
	if results == nil || archives == nil || content == nil || clock == nil {
		return nil, fmt.Errorf("result store, archive store, content store, and clock are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Builder{
		results:  results,
		archives: archives,
		content:  content,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Build assembles, stores, and persists the archive for a completed job. It
// is safe to call again after a failure; the summary row is replaced rather
// than duplicated.
func (b *Builder) Build(ctx context.Context, job tracker.Job) (profiler.Archive, error) {
	results, err := b.results.ListByTracker(ctx, job.TrackerID)
	if err != nil {
		return profiler.Archive{}, fmt.Errorf("list results for %s: %w", job.TrackerID, err)
	}
	if len(results) == 0 {
		return profiler.Archive{}, fmt.Errorf("no results recorded for %s", job.TrackerID)
	}

	bundle, err := b.buildBundle(ctx, results)
	if err != nil {
		return profiler.Archive{}, err
	}

	artifact, err := b.content.Put(ctx, bundle, job.TrackerID+".zip", "application/zip")
	if err != nil {
		return profiler.Archive{}, fmt.Errorf("store bundle: %w", err)
	}

	archive := profiler.Archive{
		TrackerID: job.TrackerID,
		Username:  job.Username,
		GroupID:   job.GroupID,
		SiteCount: len(results),
		Bundle:    artifact,
		CreatedAt: b.clock.Now(),
	}
	for _, r := range results {
		switch r.Status {
		case profiler.StatusFound:
			archive.FoundCount++
		case profiler.StatusNotFound:
			archive.NotFoundCount++
		default:
			archive.ErrorCount++
		}
	}

	if err := b.archives.Insert(ctx, &archive); err != nil {
		return profiler.Archive{}, fmt.Errorf("persist archive: %w", err)
	}

	metrics.ObserveArchive(len(bundle))
	b.logger.Info("archive built",
		zap.String("tracker_id", job.TrackerID),
		zap.String("username", job.Username),
		zap.Int("sites", archive.SiteCount),
		zap.Int("found", archive.FoundCount),
		zap.Int("bundle_bytes", len(bundle)),
	)
	return archive, nil
}

// buildBundle zips the CSV summary together with each distinct capture.
// Captures are deduplicated by content hash, so N error results sharing the
// placeholder contribute one zip entry referenced N times.
func (b *Builder) buildBundle(ctx context.Context, results []profiler.Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	entryByHash := make(map[string]string, len(results))
	usedNames := make(map[string]struct{}, len(results))

	var csvBuf bytes.Buffer
	cw := csv.NewWriter(&csvBuf)
	if err := cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range results {
		entry, err := b.addCapture(ctx, zw, r.Image, entryByHash, usedNames)
		if err != nil {
			return nil, err
		}
		row := []string{r.SiteName, r.SiteURL, r.Status.Name(), entry}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}

	w, err := zw.Create("results.csv")
	if err != nil {
		return nil, fmt.Errorf("create csv entry: %w", err)
	}
	if _, err := w.Write(csvBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("write csv entry: %w", err)
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize bundle: %w", err)
	}
	return buf.Bytes(), nil
}

// addCapture writes the capture into the zip once per distinct hash and
// returns the entry name used in the CSV. Distinct captures sharing a display
// name get a hash-prefixed entry name instead of clobbering each other.
func (b *Builder) addCapture(ctx context.Context, zw *zip.Writer, image profiler.Artifact, entryByHash map[string]string, usedNames map[string]struct{}) (string, error) {
	if image.Zero() {
		return "", nil
	}
	if entry, ok := entryByHash[image.Hash]; ok {
		return entry, nil
	}

	entry := image.Name
	if _, taken := usedNames[entry]; taken {
		entry = shortHash(image.Hash) + "-" + image.Name
	}

	data, err := b.content.Open(ctx, image)
	if err != nil {
		return "", fmt.Errorf("open capture %s: %w", image.Hash, err)
	}
	w, err := zw.Create(entry)
	if err != nil {
		return "", fmt.Errorf("create capture entry %s: %w", entry, err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("write capture entry %s: %w", entry, err)
	}

	entryByHash[image.Hash] = entry
	usedNames[entry] = struct{}{}
	return entry, nil
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
