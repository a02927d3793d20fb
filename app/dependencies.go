package app

import (
	"context"
	"fmt"

	"github.com/release-engineering/greenwave-sub000/config"
	"github.com/release-engineering/greenwave-sub000/middleware"
	"github.com/release-engineering/greenwave-sub000/models"
	"github.com/release-engineering/greenwave-sub000/repositories"
	"github.com/release-engineering/greenwave-sub000/repositories/httpapi"
	"github.com/release-engineering/greenwave-sub000/repositories/postgres"
	"github.com/release-engineering/greenwave-sub000/services/cache"
	"github.com/release-engineering/greenwave-sub000/services/decision"
	"github.com/release-engineering/greenwave-sub000/services/listener"
	"github.com/release-engineering/greenwave-sub000/services/policy"
	"github.com/release-engineering/greenwave-sub000/services/resources"
	"github.com/release-engineering/greenwave-sub000/services/subjects"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Version string

	// Configuration documents
	Policies     []*policy.Policy
	SubjectTypes []*models.SubjectType
	Registry     *subjects.Registry

	// Stores
	RepoFactory *postgres.RepositoryFactory
	Repos       *repositories.Repositories
	Cache       cache.Store
	Koji        *resources.KojiClient

	// Services
	Decisions *decision.Service
	Listener  *listener.Listener

	// Auth
	AuthMiddleware *middleware.AuthMiddleware
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initDocuments(cfg); err != nil {
		return nil, err
	}

	if err := deps.initRepositories(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := deps.initCache(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	deps.initListener(cfg)

	logger.Info("all dependencies initialized successfully",
		zap.Int("policies", len(deps.Policies)),
		zap.Int("subject_types", len(deps.SubjectTypes)),
		zap.String("store_backend", cfg.Stores.Backend),
		zap.String("cache_backend", cfg.Cache.Backend),
	)
	return deps, nil
}

// initDocuments loads the subject types and the policies
func (d *Dependencies) initDocuments(cfg *config.Config) error {
	types, err := subjects.LoadDir(cfg.Policies.SubjectTypesDir)
	if err != nil {
		return fmt.Errorf("failed to load subject types: %w", err)
	}
	policies, err := policy.LoadDir(cfg.Policies.PoliciesDir)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	d.SubjectTypes = types
	d.Registry = subjects.NewRegistry(types)
	d.Policies = policies
	return nil
}

// initRepositories selects where results and waivers are read from
func (d *Dependencies) initRepositories(cfg *config.Config) error {
	switch cfg.Stores.Backend {
	case config.StoreBackendPostgres:
		factory, err := postgres.NewRepositoryFactory(cfg.Stores, d.Logger)
		if err != nil {
			return fmt.Errorf("failed to create repository factory: %w", err)
		}
		d.RepoFactory = factory
		d.Repos = factory.NewRepositories()
	default:
		d.Repos = &repositories.Repositories{
			Results: httpapi.NewResultsDBClient(httpapi.ClientConfig{
				BaseURL:    cfg.Stores.ResultsDBURL,
				Timeout:    cfg.Stores.RequestsTimeout,
				MaxElapsed: cfg.Stores.RetryMaxElapsed,
			}, d.Logger),
			Waivers: httpapi.NewWaiverDBClient(httpapi.ClientConfig{
				BaseURL:    cfg.Stores.WaiverDBURL,
				Timeout:    cfg.Stores.RequestsTimeout,
				MaxElapsed: cfg.Stores.RetryMaxElapsed,
			}, d.Logger),
		}
	}

	d.Logger.Info("repositories initialized", zap.String("backend", cfg.Stores.Backend))
	return nil
}

func (d *Dependencies) initCache(ctx context.Context, cfg *config.Config) error {
	store, err := cache.New(cache.Options{
		Backend:       cfg.Cache.Backend,
		TTL:           cfg.Cache.TTL,
		MaxEntries:    cfg.Cache.MaxEntries,
		RedisAddr:     cfg.Cache.RedisAddr,
		RedisPassword: cfg.Cache.RedisPassword,
		RedisDB:       cfg.Cache.RedisDB,
	})
	if err != nil {
		return err
	}
	d.Cache = store

	if redisStore, ok := store.(*cache.RedisStore); ok {
		if err := redisStore.Ping(ctx); err != nil {
			// entries are recomputed while Redis is away
			d.Logger.Warn("redis cache unreachable", zap.String("addr", cfg.Cache.RedisAddr), zap.Error(err))
		}
	}
	return nil
}

func (d *Dependencies) initServices(cfg *config.Config) error {
	var builds policy.BuildMetadata
	if cfg.Koji.BaseURL != "" {
		koji, err := resources.NewKojiClient(resources.KojiConfig{
			BaseURL:    cfg.Koji.BaseURL,
			Timeout:    cfg.Stores.RequestsTimeout,
			MaxElapsed: cfg.Stores.RetryMaxElapsed,
		}, d.Cache, d.Logger)
		if err != nil {
			return err
		}
		d.Koji = koji
		builds = koji
	}

	d.Decisions = decision.NewService(decision.Deps{
		Policies: d.Policies,
		Registry: d.Registry,
		Settings: Settings(cfg.Decision),
		Repos:    d.Repos,
		Cache:    d.Cache,
		Builds:   builds,
		Fetcher:  resources.NewHTTPFetcher(cfg.Decision.RemoteRuleGitTimeout, cfg.Stores.RetryMaxElapsed, d.Logger),
	}, d.Logger)
	return nil
}

// initListener creates the decision change listener and the validator
// protecting its endpoints
func (d *Dependencies) initListener(cfg *config.Config) {
	if !cfg.Listener.Enabled {
		d.Logger.Info("listener disabled")
		return
	}

	var publisher listener.Publisher
	if redisStore, ok := d.Cache.(*cache.RedisStore); ok {
		publisher = listener.NewRedisPublisher(redisStore.Client(), d.Logger)
	} else {
		d.Logger.Warn("no message broker configured, decision updates are only logged")
		publisher = listener.NewLogPublisher(d.Logger)
	}

	var targets subjects.BuildTargets
	if d.Koji != nil {
		targets = d.Koji
	}

	d.Listener = listener.New(listener.Config{
		Destination:        cfg.Listener.DecisionUpdateDestination,
		OutcomesIncomplete: cfg.Decision.OutcomesIncomplete,
	}, d.Decisions, d.Registry, subjects.NewGuesser(targets, d.Logger), d.Cache, publisher, d.Logger)

	if cfg.Listener.JWTSecret != "" {
		d.AuthMiddleware = middleware.NewAuthMiddleware(middleware.NewHMACTokenValidator(cfg.Listener.JWTSecret), d.Logger)
	} else {
		d.Logger.Warn("listener endpoints are not authenticated")
	}
	d.Logger.Info("listener initialized", zap.String("uid", d.Listener.UID()))
}

// Settings converts the decision configuration to evaluator settings
func Settings(cfg config.DecisionConfig) policy.Settings {
	return policy.Settings{
		OutcomesPassed:          cfg.OutcomesPassed,
		OutcomesError:           cfg.OutcomesError,
		OutcomesIncomplete:      cfg.OutcomesIncomplete,
		DistinctLatestResultsOn: cfg.DistinctLatestResultsOn,
		IncompleteResultsBlock:  cfg.IncompleteResultsBlock,
		RemoteRuleTemplates:     cfg.RemoteRulePolicies,
		DistGitURLTemplate:      cfg.DistGitURLTemplate,
	}
}

// CacheHealthCheck reports whether the Redis cache answers. Other cache
// backends are always healthy.
func (d *Dependencies) CacheHealthCheck(ctx context.Context) map[string]error {
	redisStore, ok := d.Cache.(*cache.RedisStore)
	if !ok {
		return nil
	}
	return map[string]error{"cache": redisStore.Ping(ctx)}
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connections closed")
		}
	}

	if redisStore, ok := d.Cache.(*cache.RedisStore); ok {
		if err := redisStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close redis: %w", err))
		}
	}

	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	return nil
}
