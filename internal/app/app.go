// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/market-harvester/internal/api"
	"github.com/JakeFAU/market-harvester/internal/clock/system"
	"github.com/JakeFAU/market-harvester/internal/config"
	"github.com/JakeFAU/market-harvester/internal/fetch"
	"github.com/JakeFAU/market-harvester/internal/harvest"
	"github.com/JakeFAU/market-harvester/internal/id/uuid"
	"github.com/JakeFAU/market-harvester/internal/identity"
	"github.com/JakeFAU/market-harvester/internal/market"
	"github.com/JakeFAU/market-harvester/internal/market/amazon"
	"github.com/JakeFAU/market-harvester/internal/market/ebay"
	"github.com/JakeFAU/market-harvester/internal/market/etsy"
	"github.com/JakeFAU/market-harvester/internal/market/shopify"
	"github.com/JakeFAU/market-harvester/internal/market/walmart"
	"github.com/JakeFAU/market-harvester/internal/metrics"
	"github.com/JakeFAU/market-harvester/internal/policy/ratelimit"
	"github.com/JakeFAU/market-harvester/internal/progress"
	progsinks "github.com/JakeFAU/market-harvester/internal/progress/sinks"
	"github.com/JakeFAU/market-harvester/internal/report"
	"github.com/JakeFAU/market-harvester/internal/sink"
	filesink "github.com/JakeFAU/market-harvester/internal/sink/file"
	memorysink "github.com/JakeFAU/market-harvester/internal/sink/memory"
	postgressink "github.com/JakeFAU/market-harvester/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/market-harvester/internal/sink/pubsub"
	"github.com/JakeFAU/market-harvester/internal/storage"
	gcsstore "github.com/JakeFAU/market-harvester/internal/storage/gcs"
	localstore "github.com/JakeFAU/market-harvester/internal/storage/local"
	memorystore "github.com/JakeFAU/market-harvester/internal/storage/memory"
)

const closeTimeout = 10 * time.Second

// App holds all the shared, long-lived services for the application.
// It acts as a dependency injection (DI) container, holding the progress hub,
// the market registry, the orchestrator, and the configured output sinks.
// This struct is initialized once at startup and passed to the commands that
// need it.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	hub      *progress.Hub
	registry *market.Registry
	orch     *harvest.Orchestrator
	sinks    sink.Multi

	fileSink  *filesink.Sink
	pgSink    *postgressink.Sink
	psSink    *pubsubsink.Sink
	memSink   *memorysink.Sink
	gcsClient *gcstorage.Client

	apiServer *api.Server
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the configuration the graph was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetOrchestrator exposes the harvest orchestrator.
func (a *App) GetOrchestrator() *harvest.Orchestrator {
	return a.orch
}

// GetRegistry exposes the market adapter registry.
func (a *App) GetRegistry() *market.Registry {
	return a.registry
}

// GetSinks returns the combined output sink the run publishes through.
func (a *App) GetSinks() sink.Sink {
	return a.sinks
}

// GetMemorySink returns the in-memory sink, or nil when it was not enabled.
func (a *App) GetMemorySink() *memorysink.Sink {
	return a.memSink
}

// GetAPIServer returns the status server, or nil when server.enabled is false.
func (a *App) GetAPIServer() *api.Server {
	return a.apiServer
}

// ReportOptions derives the analyzer switches for report.Build from the
// harvest configuration.
func (a *App) ReportOptions() report.Options {
	return report.Options{
		TrackPrices: a.cfg.Harvest.TrackPrices,
		TrackStock:  a.cfg.Harvest.TrackStock,
		TrackTrends: a.cfg.Harvest.TrackTrends,
		SearchTerms: a.cfg.Harvest.SearchTerms,
	}
}

// New creates and initializes the App graph from the supplied configuration.
// It is the central point for service initialization: archive store, identity
// catalog, rate limiter, fetch pipelines, market adapters, sinks, and the
// orchestrator. This function is designed to fail fast if any critical
// service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Initializing application services...")

	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	promSink, err := progsinks.NewPrometheusSink(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize progress metrics: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		progsinks.NewLogSink(logger.Named("progress")),
		promSink,
	)

	// 1. Archive store for raw payloads.
	// Blocked (or all) fetch payloads are archived here for offline diagnosis
	// of new block pages and parser drift.
	archive, err := a.buildArchive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}

	// 2. Fetch layer: identity catalog, pacing, and the two pipelines.
	// HTML markets ride the colly client; Shopify's products.json rides resty.
	identities := identity.NewCatalog(identity.Options{
		RandomUserAgents: cfg.Identity.DynamicUserAgents,
		CacheSize:        cfg.Identity.ProfileCacheSize,
	})
	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Fetch.RatePerMarket,
		DefaultBurst: cfg.Fetch.RateBurst,
	})
	pipeOpts := fetch.Options{
		MaxRetries:  cfg.Fetch.MaxRetries,
		BackoffBase: cfg.Fetch.BackoffBase,
		Timeout:     cfg.Fetch.Timeout,
		ArchiveMode: cfg.Archive.Mode,
	}
	htmlPipe, err := fetch.NewPipeline(fetch.Deps{
		Client:     fetch.NewCollyClient(fetch.CollyConfig{Timeout: cfg.Fetch.Timeout, CloudflareBypass: cfg.Fetch.CloudflareBypass}),
		Identities: identities,
		Limiter:    limiter,
		Archive:    archive,
		Emitter:    a.hub,
		Challenge:  fetch.NewChallengeDetector(cfg.Fetch.ChallengeMinBytes, nil),
		Logger:     logger.Named("fetch"),
	}, pipeOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize html pipeline: %w", err)
	}
	jsonClient, err := fetch.NewRestyClient(fetch.RestyConfig{Timeout: cfg.Fetch.Timeout, CloudflareBypass: cfg.Fetch.CloudflareBypass})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resty client: %w", err)
	}
	jsonPipe, err := fetch.NewPipeline(fetch.Deps{
		Client:     jsonClient,
		Identities: identities,
		Limiter:    limiter,
		Archive:    archive,
		Emitter:    a.hub,
		Logger:     logger.Named("fetch"),
	}, pipeOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize json pipeline: %w", err)
	}

	// 3. Market adapters. Every adapter registers; cfg.Harvest.Markets picks
	// the subset a run dispatches to.
	a.registry, err = buildRegistry(cfg.Harvest, htmlPipe, jsonPipe, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize market registry: %w", err)
	}
	sources, err := a.registry.Sources(cfg.Harvest.Markets...)
	if err != nil {
		return nil, err
	}

	// 4. Output sinks.
	if err := a.buildSinks(ctx); err != nil {
		return nil, err
	}

	// 5. The orchestrator itself.
	a.orch, err = harvest.NewOrchestrator(harvest.Quota{
		TargetTotal:      cfg.Harvest.TargetTotal,
		MinPerMarket:     cfg.Harvest.MinPerMarket,
		MaxRounds:        cfg.Harvest.MaxRounds,
		SearchTerms:      cfg.Harvest.SearchTerms,
		SearchAttempts:   cfg.Harvest.SearchAttempts,
		SearchRetryDelay: cfg.Harvest.SearchRetryDelay,
		SearchTimeout:    cfg.Harvest.SearchTimeout,
		InterRoundDelay:  cfg.Harvest.InterRoundDelay,
	}, harvest.Deps{
		Sources:   sources,
		Publisher: a.sinks,
		Emitter:   a.hub,
		Clock:     system.New(),
		IDs:       uuid.New(),
		Logger:    logger.Named("harvest"),
	})
	if err != nil {
		return nil, err
	}

	if cfg.Server.Enabled {
		a.apiServer = api.NewServer(a.orch, cfg, logger.Named("api"))
	}

	logger.Info("Application services initialized successfully.",
		zap.Strings("markets", cfg.Harvest.Markets),
		zap.Strings("sinks", cfg.Sink.Kinds),
		zap.String("archive", cfg.Archive.Kind),
	)
	return a, nil
}

func (a *App) buildArchive(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.Archive.Kind {
	case "", "none":
		return storage.NopStore{}, nil
	case "memory":
		return memorystore.NewBlobStore(), nil
	case "local":
		return localstore.New(localstore.Config{BaseDir: a.cfg.Archive.LocalDir})
	case "gcs":
		if a.cfg.Archive.GCSBucket == "" {
			return nil, fmt.Errorf("archive kind is 'gcs' but archive.gcs_bucket is not set")
		}
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.gcsClient = client
		return gcsstore.New(client, gcsstore.Config{
			Bucket: a.cfg.Archive.GCSBucket,
			Prefix: a.cfg.Archive.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown archive kind: %s", a.cfg.Archive.Kind)
	}
}

func (a *App) buildSinks(ctx context.Context) error {
	for _, kind := range a.cfg.Sink.Kinds {
		switch kind {
		case "memory":
			a.memSink = memorysink.New()
			a.sinks = append(a.sinks, a.memSink)
		case "file":
			fs, err := filesink.New(filesink.Config{
				Dir:         a.cfg.Sink.File.Dir,
				ReportName:  a.cfg.Sink.File.ReportName,
				RecordsName: a.cfg.Sink.File.RecordsName,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize file sink: %w", err)
			}
			a.fileSink = fs
			a.sinks = append(a.sinks, fs)
		case "postgres":
			pg, err := postgressink.New(ctx, postgressink.Config{
				DSN:             a.cfg.Sink.Postgres.DSN,
				Table:           a.cfg.Sink.Postgres.Table,
				MaxConns:        a.cfg.Sink.Postgres.MaxConns,
				MinConns:        a.cfg.Sink.Postgres.MinConns,
				MaxConnLifetime: a.cfg.Sink.Postgres.MaxConnLifetime,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize postgres sink: %w", err)
			}
			a.pgSink = pg
			a.sinks = append(a.sinks, pg)
		case "pubsub":
			ps, err := pubsubsink.New(ctx, pubsubsink.Config{
				ProjectID: a.cfg.Sink.PubSub.ProjectID,
				TopicID:   a.cfg.Sink.PubSub.TopicName,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize pubsub sink: %w", err)
			}
			a.psSink = ps
			a.sinks = append(a.sinks, ps)
		default:
			return fmt.Errorf("unknown sink kind: %s", kind)
		}
	}
	return nil
}

func buildRegistry(hc config.HarvestConfig, htmlPipe, jsonPipe *fetch.Pipeline, logger *zap.Logger) (*market.Registry, error) {
	reg := market.NewRegistry()

	amazonSrc, err := amazon.New(htmlPipe, amazon.Config{Domain: hc.AmazonDomain, MaxResults: hc.MaxResults}, logger.Named("amazon"))
	if err != nil {
		return nil, fmt.Errorf("init amazon adapter: %w", err)
	}
	ebaySrc, err := ebay.New(htmlPipe, ebay.Config{MaxResults: hc.MaxResults}, logger.Named("ebay"))
	if err != nil {
		return nil, fmt.Errorf("init ebay adapter: %w", err)
	}
	etsySrc, err := etsy.New(htmlPipe, etsy.Config{MaxResults: hc.MaxResults}, logger.Named("etsy"))
	if err != nil {
		return nil, fmt.Errorf("init etsy adapter: %w", err)
	}
	walmartSrc, err := walmart.New(htmlPipe, walmart.Config{MaxResults: hc.MaxResults}, logger.Named("walmart"))
	if err != nil {
		return nil, fmt.Errorf("init walmart adapter: %w", err)
	}
	shopifySrc, err := shopify.New(jsonPipe, shopify.Config{Domains: hc.ShopifyStores, MaxResults: hc.MaxResults}, logger.Named("shopify"))
	if err != nil {
		return nil, fmt.Errorf("init shopify adapter: %w", err)
	}

	for _, src := range []harvest.Source{amazonSrc, ebaySrc, etsySrc, walmartSrc, shopifySrc} {
		if err := reg.Register(src); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Close gracefully shuts down all services in the App container, in reverse
// initialization order. It is called by a Cobra hook after the command
// finishes execution.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if a.psSink != nil {
		if err := a.psSink.Close(); err != nil {
			a.logger.Warn("Error closing pubsub sink", zap.Error(err))
		}
	}
	if a.pgSink != nil {
		a.pgSink.Close()
	}
	if a.fileSink != nil {
		if err := a.fileSink.Close(); err != nil {
			a.logger.Warn("Error closing file sink", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("Error closing gcs client", zap.Error(err))
		}
	}
	if err := a.hub.Close(ctx); err != nil {
		a.logger.Warn("Error draining progress hub", zap.Error(err))
	}

	// Flushing the logger buffer is important to ensure all logs are written before the application exits.
	if err := a.logger.Sync(); err != nil {
		// We can't do much here, as logging itself might be failing.
		// This is a best-effort attempt.
		a.logger.Warn("Error syncing logger on shutdown", zap.Error(err))
	}
}
