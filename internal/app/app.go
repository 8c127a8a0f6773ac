// Package app initializes and holds long-lived application services, acting as
// a dependency injection container for the CLI commands and the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/steam-catalog-crawler/internal/api"
	"github.com/JakeFAU/steam-catalog-crawler/internal/catalog"
	"github.com/JakeFAU/steam-catalog-crawler/internal/config"
	"github.com/JakeFAU/steam-catalog-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/steam-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/steam-catalog-crawler/internal/filter"
	"github.com/JakeFAU/steam-catalog-crawler/internal/logging"
	"github.com/JakeFAU/steam-catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/steam-catalog-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/steam-catalog-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/steam-catalog-crawler/internal/publisher/pubsub"
	pgstore "github.com/JakeFAU/steam-catalog-crawler/internal/storage/postgres"
	"github.com/JakeFAU/steam-catalog-crawler/internal/storage/sqlite"
	"github.com/JakeFAU/steam-catalog-crawler/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Options adjusts how Build wires process-global infrastructure.
type Options struct {
	// Logger replaces the logger built from configuration.
	Logger *zap.Logger
	// Registerer receives the progress collectors; nil uses the default registry
	// served on /metrics.
	Registerer prometheus.Registerer
}

// App holds all the shared, long-lived services for the application. It is
// built once at startup and closed by the command that built it.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	store     catalog.Store
	fetcher   *collyfetcher.Fetcher
	filter    crawler.NameFilter
	pacer     *ratelimit.Limiter
	publisher *gcppublisher.Publisher
	hub       *progress.Hub
	sync      *crawler.Synchronizer
	tracer    *sdktrace.TracerProvider
}

// Build creates the application's dependencies from cfg. It fails fast when a
// critical service cannot be initialized.
func Build(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{
			Development: cfg.Logging.Development,
			Level:       cfg.Logging.Level,
		})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
		zap.ReplaceGlobals(logger)
	}
	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("auth_enabled", cfg.Auth.Enabled),
	)

	steps := []func(context.Context, Options) error{
		a.setupTelemetry,
		a.setupStore,
		a.setupFetching,
		a.setupPublisher,
		a.setupProgress,
	}
	for _, step := range steps {
		if err := step(ctx, opts); err != nil {
			a.Close()
			return nil, err
		}
	}
	a.sync = crawler.NewSynchronizer(
		a.store,
		a.fetcher,
		cfg.CrawlerSettings().ListFreshness,
		nil,
		a.logger.Named("sync"),
	)
	return a, nil
}

func (a *App) setupTelemetry(ctx context.Context, _ Options) error {
	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: a.cfg.Telemetry.ServiceName,
		SampleRatio: a.cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("tracer init failed: %w", err)
	}
	a.tracer = tp
	return nil
}

func (a *App) setupStore(ctx context.Context, _ Options) error {
	switch a.cfg.Database.Driver {
	case config.DriverPostgres:
		store, err := pgstore.NewCatalogStore(ctx, pgstore.StoreConfig{
			DSN:      a.cfg.Database.DSN,
			MaxConns: a.cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.store = store
		a.logger.Info("using postgres catalog store")
	default:
		store, err := sqlite.Open(ctx, sqlite.Config{Path: a.cfg.Database.Path})
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.store = store
		a.logger.Info("using sqlite catalog store", zap.String("path", a.cfg.Database.Path))
	}
	return nil
}

func (a *App) setupFetching(context.Context, Options) error {
	fetcher, err := collyfetcher.New(collyfetcher.Config{
		ListURL:     a.cfg.Source.ListURL,
		DetailURL:   a.cfg.Source.DetailURL,
		UserAgents:  a.cfg.Source.UserAgents,
		Timeout:     a.cfg.SourceTimeout(),
		MaxAttempts: a.cfg.Source.MaxAttempts,
		BackoffBase: a.cfg.SourceBackoff(),
		CountryCode: a.cfg.Source.CountryCode,
	}, a.logger.Named("fetcher"))
	if err != nil {
		return fmt.Errorf("fetcher init failed: %w", err)
	}
	a.fetcher = fetcher
	a.filter = filter.NewHeuristic(a.cfg.Crawler.ExtraExcludeKeywords...)
	a.pacer = ratelimit.New(ratelimit.Config{Interval: a.cfg.CrawlerSettings().Delay})
	return nil
}

func (a *App) setupPublisher(ctx context.Context, _ Options) error {
	if a.cfg.PubSub.TopicName == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub topic configured, new-game notifications disabled")
		return nil
	}
	publisher, err := gcppublisher.New(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return nil
}

func (a *App) setupProgress(_ context.Context, opts Options) error {
	promSink, err := progresssinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		return fmt.Errorf("progress sink init failed: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: a.logger.Named("progress_hub")},
		progresssinks.NewLogSink(a.logger.Named("progress")),
		promSink,
	)
	return nil
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Store exposes the catalog store.
func (a *App) Store() catalog.Store {
	return a.store
}

// Synchronizer returns the listing synchronizer.
func (a *App) Synchronizer() *crawler.Synchronizer {
	return a.sync
}

// NewEngine wires a crawl engine for cfg, which is normally
// Config().CrawlerSettings() adjusted by command-line flags.
func (a *App) NewEngine(cfg crawler.Config) (*crawler.Engine, error) {
	deps := crawler.Deps{
		Store:   a.store,
		Details: a.fetcher,
		Filter:  a.filter,
		Sync:    a.sync,
		Pacer:   a.pacer,
		Emitter: a.hub,
		Logger:  a.logger.Named("crawler"),
	}
	if a.publisher != nil {
		deps.Publisher = a.publisher
	} else {
		cfg.Topic = ""
	}
	engine, err := crawler.NewEngine(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("crawler init failed: %w", err)
	}
	return engine, nil
}

// ServeAPI runs the read API until ctx is canceled, then shuts it down
// gracefully.
func (a *App) ServeAPI(ctx context.Context) error {
	server := api.NewServer(a.store, a.cfg.Auth, a.logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	a.logger.Info("http server stopped")
	return nil
}

// Close gracefully shuts down all services in the App container. It is safe to
// call on a partially built App.
func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("catalog store close failed", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	// Flushing stdout/stderr can fail harmlessly on some platforms.
	_ = a.logger.Sync()
}
