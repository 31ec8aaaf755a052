// Package app assembles the search pipeline from configuration. The worker,
// the HTTP server and the CLI all build their collaborators here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-search-service/internal/config"
	"github.com/helixir/paper-search-service/internal/content"
	"github.com/helixir/paper-search-service/internal/contentstore"
	"github.com/helixir/paper-search-service/internal/database"
	"github.com/helixir/paper-search-service/internal/dedup"
	"github.com/helixir/paper-search-service/internal/events"
	"github.com/helixir/paper-search-service/internal/llm"
	"github.com/helixir/paper-search-service/internal/observability"
	"github.com/helixir/paper-search-service/internal/papersources"
	"github.com/helixir/paper-search-service/internal/pdf"
	"github.com/helixir/paper-search-service/internal/repository"
	"github.com/helixir/paper-search-service/internal/search"
)

// Options adjust what New builds.
type Options struct {
	// DisableEvents uses a NopPublisher even when Kafka is enabled.
	DisableEvents bool
}

// App holds the wired components and the resources that must be closed.
type App struct {
	Config       *config.Config
	Logger       zerolog.Logger
	Metrics      *observability.Metrics
	DB           *database.DB
	Redis        *redis.Client
	Store        *contentstore.BadgerStore
	Orchestrator *search.Orchestrator
	Service      *search.Service
	Events       events.Publisher
	Runs         *repository.PgSearchRunRepository

	closers []func() error
}

// New builds the application. On error every resource opened so far is
// released.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metrics *observability.Metrics, opts Options) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger, Metrics: metrics}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var catalog contentstore.Catalog
	var recorder search.RunRecorder
	if cfg.Database.Enabled {
		if err := a.openDatabase(ctx); err != nil {
			return nil, err
		}
		catalog = repository.NewPgContentRepository(a.DB)
		recorder = repository.NewRunHistory(a.DB, cfg.Database.RunRetention)
		a.Runs = repository.NewPgSearchRunRepository(a.DB)
	}

	store, err := a.openContentStore(ctx, catalog)
	if err != nil {
		return nil, err
	}

	downloader := pdf.NewDownloader(pdf.Config{
		Timeout:              cfg.PDF.Timeout,
		MaxSize:              cfg.PDF.MaxSize,
		MinSize:              cfg.PDF.MinSize,
		UserAgent:            cfg.PDF.UserAgent,
		AllowPrivateNetworks: cfg.PDF.AllowPrivateNetworks,
	}, logger)

	registry := papersources.NewRegistry(logger)
	RegisterProviders(registry, cfg, logger)
	active, err := registry.Active(Credentials(cfg))
	if err != nil {
		return nil, fmt.Errorf("build provider set: %w", err)
	}

	deps := search.Dependencies{
		Providers: active,
		Filters:   papersources.NewFilterBuilder(cfg.Search.RecentYears),
		Dedup:     dedup.NewEngine(logger),
		Enforcer:  content.NewEnforcer(store, downloader, logger, metrics),
	}
	if cfg.Search.AIRefinementEnabled {
		deps.Refiner = llm.NewQueryRefiner(llm.NewChatClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			MaxRetries:  cfg.LLM.MaxRetries,
		}), logger, metrics)
	}
	if cfg.Search.EnrichmentEnabled {
		if lookups := EnrichmentLookups(cfg); len(lookups) > 0 {
			deps.Enricher = search.NewMetadataEnricher(logger, cfg.Search.EnrichmentConcurrency, cfg.Search.EnrichmentTimeout, lookups...)
		}
	}

	a.Orchestrator, err = search.NewOrchestrator(SearchConfig(cfg), deps, logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	a.Events = events.NopPublisher{}
	if cfg.Kafka.Enabled && !opts.DisableEvents {
		a.Events = events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, logger)
		a.closers = append(a.closers, a.Events.Close)
	}

	a.Service = search.NewService(a.Orchestrator, recorder, logger)

	logger.Info().
		Strs("providers", active.NameStrings()).
		Bool("ai_refinement", a.Orchestrator.RefinementReady()).
		Bool("enrichment", deps.Enricher != nil).
		Bool("database", a.DB != nil).
		Bool("redis", a.Redis != nil).
		Bool("kafka", cfg.Kafka.Enabled && !opts.DisableEvents).
		Msg("search pipeline assembled")
	return a, nil
}

// SearchConfig maps the search section onto orchestrator knobs.
func SearchConfig(cfg *config.Config) search.Config {
	s := cfg.Search
	return search.Config{
		PapersPerSource:      s.PapersPerSource,
		MaxRounds:            s.MaxRounds,
		CompensationFactor:   s.CompensationFactor,
		MaxRefinedQueries:    s.MaxRefinedQueries,
		RefinementSampleSize: s.RefinementSampleSize,
		ProviderTimeout:      s.ProviderTimeout,
		SlowProviderTimeout:  s.SlowProviderTimeout,
		MaxRateLimitRetries:  s.MaxRateLimitRetries,
		RateLimitBackoff:     s.RateLimitBackoff,
		ContentBatchSize:     s.ContentBatchSize,
	}
}

func (a *App) openDatabase(ctx context.Context) error {
	db, err := database.New(ctx, &a.Config.Database, a.Logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error { db.Close(); return nil })

	if !a.Config.Database.MigrationAutoRun {
		return nil
	}
	migrator, err := database.NewMigrator(db, a.Config.Database.MigrationPath, a.Logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			a.Logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()
	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (a *App) openContentStore(ctx context.Context, catalog contentstore.Catalog) (content.Store, error) {
	cfg := a.Config
	badgerStore, err := contentstore.OpenBadgerStore(contentstore.BadgerConfig{
		Path:          cfg.Storage.Path,
		InMemory:      cfg.Storage.InMemory,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, catalog, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	a.Store = badgerStore
	a.closers = append(a.closers, badgerStore.Close)

	if !cfg.Redis.Enabled {
		return badgerStore, nil
	}

	client, err := contentstore.NewRedisClient(ctx, contentstore.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.Redis = client
	a.closers = append(a.closers, client.Close)

	cache := contentstore.NewRedisCache(client, cfg.Redis.KeyPrefix)
	return contentstore.NewCachedStore(badgerStore, cache, cfg.Redis.TTL, a.Logger), nil
}

// Checks returns the readiness checks for the resources this App opened.
func (a *App) Checks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if a.Store != nil {
		checks["storage"] = a.Store.Ping
	}
	if a.DB != nil {
		checks["database"] = a.DB.Ping
	}
	if a.Redis != nil {
		client := a.Redis
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
