// Package main wires together the profiler service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/api"
	"github.com/osintlabs/profiler/internal/archive"
	"github.com/osintlabs/profiler/internal/clock/system"
	"github.com/osintlabs/profiler/internal/config"
	"github.com/osintlabs/profiler/internal/content"
	contentgcs "github.com/osintlabs/profiler/internal/content/gcs"
	contentlocal "github.com/osintlabs/profiler/internal/content/local"
	contentmemory "github.com/osintlabs/profiler/internal/content/memory"
	"github.com/osintlabs/profiler/internal/engine"
	"github.com/osintlabs/profiler/internal/hash/sha256"
	"github.com/osintlabs/profiler/internal/id"
	"github.com/osintlabs/profiler/internal/logging"
	"github.com/osintlabs/profiler/internal/orchestrator"
	"github.com/osintlabs/profiler/internal/profiler"
	pubmemory "github.com/osintlabs/profiler/internal/publisher/memory"
	pubgcp "github.com/osintlabs/profiler/internal/publisher/pubsub"
	renderchromedp "github.com/osintlabs/profiler/internal/render/chromedp"
	renderprobe "github.com/osintlabs/profiler/internal/render/probe"
	rendersplash "github.com/osintlabs/profiler/internal/render/splash"
	storagememory "github.com/osintlabs/profiler/internal/storage/memory"
	storagepostgres "github.com/osintlabs/profiler/internal/storage/postgres"
	"github.com/osintlabs/profiler/internal/tracker"
	"github.com/osintlabs/profiler/internal/validator"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	clock := system.New()
	hasher := sha256.New()
	ids := id.New()

	render, closeRender, err := newRenderClient(cfg, logger)
	if err != nil {
		return fmt.Errorf("init render client: %w", err)
	}
	defer closeRender()

	contentStore, err := newContentStore(ctx, cfg, hasher, logger)
	if err != nil {
		return fmt.Errorf("init content store: %w", err)
	}

	stores, closeDB, err := newStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init stores: %w", err)
	}
	defer closeDB()

	publisher, closePub, err := newPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	defer func() {
		if err := closePub(); err != nil {
			logger.Warn("publisher close failed", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(render, contentStore, clock, orchestrator.Config{
		Concurrency:    cfg.Engine.Concurrency,
		RequestTimeout: cfg.RequestTimeout(),
		BatchDeadline:  cfg.BatchDeadline(),
	}, logger.Named("orchestrator"))
	if err != nil {
		return err
	}

	builder, err := archive.NewBuilder(stores.results, stores.archives, contentStore, clock, logger.Named("archive"))
	if err != nil {
		return err
	}

	trk := tracker.New(stores.trackers, stores.results, publisher, builder, clock, logger.Named("tracker"))

	val, err := validator.New(stores.sites, stores.results, orch, ids, clock, logger.Named("validator"))
	if err != nil {
		return err
	}

	eng, err := engine.New(stores.sites, stores.results, stores.archives, orch, trk, val, ids, logger.Named("engine"))
	if err != nil {
		return err
	}

	apiServer, err := api.NewServer(eng, contentStore, logger.Named("api"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newRenderClient(cfg config.Config, logger *zap.Logger) (profiler.RenderClient, func(), error) {
	noop := func() {}
	switch cfg.Render.Provider {
	case "splash":
		client, err := rendersplash.New(rendersplash.Config{
			BaseURL:        cfg.Render.SplashURL,
			UserAgent:      cfg.Render.UserAgent,
			ConnectTimeout: cfg.ConnectTimeout(),
			DefaultTimeout: cfg.RequestTimeout(),
		}, logger.Named("splash"))
		return client, noop, err
	case "chromedp":
		client, err := renderchromedp.New(renderchromedp.Config{
			MaxParallel:       cfg.Render.MaxParallelBrowsers,
			UserAgent:         cfg.Render.UserAgent,
			NavigationTimeout: cfg.RequestTimeout(),
		}, logger.Named("chromedp"))
		if err != nil {
			return nil, noop, err
		}
		return client, client.Close, nil
	case "probe":
		client, err := renderprobe.New(renderprobe.Config{
			UserAgent:      cfg.Render.UserAgent,
			RequestTimeout: cfg.RequestTimeout(),
			MaxParallel:    cfg.Engine.Concurrency,
		}, logger.Named("probe"))
		return client, noop, err
	default:
		return nil, noop, fmt.Errorf("unknown render provider %q", cfg.Render.Provider)
	}
}

func newContentStore(ctx context.Context, cfg config.Config, hasher profiler.Hasher, logger *zap.Logger) (*content.Store, error) {
	var (
		objects content.ObjectStore
		err     error
	)
	switch cfg.Storage.Provider {
	case "local":
		objects, err = contentlocal.New(contentlocal.Config{BaseDir: cfg.Storage.DataDir})
	case "gcs":
		var client *gcsclient.Client
		client, err = gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		objects, err = contentgcs.New(client, contentgcs.Config{Bucket: cfg.Storage.GCSBucket})
	case "memory":
		objects = contentmemory.New()
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
	if err != nil {
		return nil, err
	}
	return content.New(objects, hasher, logger.Named("content")), nil
}

type storeSet struct {
	sites    profiler.SiteStore
	results  profiler.ResultStore
	archives profiler.ArchiveStore
	trackers profiler.TrackerStore
}

func newStores(ctx context.Context, cfg config.Config) (storeSet, func(), error) {
	noop := func() {}
	switch cfg.DB.Provider {
	case "memory":
		return storeSet{
			sites:    storagememory.NewSiteStore(),
			results:  storagememory.NewResultStore(),
			archives: storagememory.NewArchiveStore(),
			trackers: storagememory.NewTrackerStore(),
		}, noop, nil
	case "postgres":
		pool, err := storagepostgres.NewPool(ctx, storagepostgres.Config{DSN: cfg.DB.DSN})
		if err != nil {
			return storeSet{}, noop, err
		}
		q := pool.Querier()
		sites, err := storagepostgres.NewSiteStore(q)
		if err != nil {
			return storeSet{}, noop, err
		}
		results, err := storagepostgres.NewResultStore(q)
		if err != nil {
			return storeSet{}, noop, err
		}
		archives, err := storagepostgres.NewArchiveStore(q)
		if err != nil {
			return storeSet{}, noop, err
		}
		trackers, err := storagepostgres.NewTrackerStore(q)
		if err != nil {
			return storeSet{}, noop, err
		}
		return storeSet{
			sites:    sites,
			results:  results,
			archives: archives,
			trackers: trackers,
		}, pool.Close, nil
	default:
		return storeSet{}, noop, fmt.Errorf("unknown db provider %q", cfg.DB.Provider)
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (profiler.Publisher, func() error, error) {
	noop := func() error { return nil }
	switch cfg.PubSub.Provider {
	case "memory":
		return pubmemory.New(), noop, nil
	case "pubsub":
		return pubgcp.Connect(ctx, cfg.PubSub.ProjectID, cfg.PubSub.TopicName)
	default:
		return nil, noop, fmt.Errorf("unknown pubsub provider %q", cfg.PubSub.Provider)
	}
}
