// Package app wires configuration, storage, the catalog client and the
// ingestion services into a runnable HTTP application.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"agent-bff/internal/api"
	"agent-bff/internal/catalogclient"
	"agent-bff/internal/config"
	"agent-bff/internal/db"
	"agent-bff/internal/db/repository"
	"agent-bff/internal/domain"
	"agent-bff/internal/middleware"
	"agent-bff/internal/objectstore"
	"agent-bff/internal/service/filematch"
	"agent-bff/internal/service/ingestion"
	"agent-bff/internal/service/reconcile"
	"agent-bff/internal/service/storage"
)

// Deps holds what main must provide. Store, Catalog and Validator are
// optional overrides; when nil they are built from Cfg.
type Deps struct {
	Cfg       *config.Config
	Pools     *db.Pools
	Store     domain.ObjectStore
	Catalog   domain.CatalogService
	Validator middleware.TokenValidator
	Logger    *slog.Logger
}

// App is the fully wired application.
type App struct {
	Store       domain.ObjectStore
	Catalog     domain.CatalogService
	Buckets     *storage.TempBucketManager
	TempFiles   *storage.TempFiles
	Scheduler   *reconcile.Scheduler
	Ingestion   *ingestion.IngestionService
	RateLimiter *middleware.RateLimiter
	Handler     http.Handler
}

// New builds the application graph. It does not start background work; call
// Start for that.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger

	store := deps.Store
	if store == nil {
		var err error
		if store, err = objectstore.New(ctx, cfg.Storage); err != nil {
			return nil, fmt.Errorf("object store: %w", err)
		}
	}
	logger.Info("object store ready", "backend", cfg.Storage.Backend)

	catalog := deps.Catalog
	if catalog == nil {
		catalog = catalogclient.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Token, cfg.Catalog.Timeout, cfg.Catalog.RPS, logger)
	}

	tempFiles, err := storage.NewTempFiles(cfg.TempRoot, logger)
	if err != nil {
		return nil, fmt.Errorf("temp workspace: %w", err)
	}
	buckets := storage.NewTempBucketManager(store, cfg.TempBucketPrefix, logger)

	var tasks domain.ReconciliationTaskRepository
	if deps.Pools != nil {
		tasks = repository.NewReconciliationTaskRepo(deps.Pools)
	} else {
		logger.Warn("no task store configured; pending reconciliations will not survive a restart")
	}
	scheduler := reconcile.NewScheduler(catalog, buckets, tasks, reconcile.Options{
		Interval:        cfg.Reconcile.Interval,
		MaxAge:          cfg.Reconcile.MaxAge,
		TransientStatus: cfg.Reconcile.TransientStatus,
	}, logger)

	ingest := ingestion.NewIngestionService(
		store, catalog, filematch.NewMatcher(cfg.KeyDelimiter), buckets, tempFiles,
		ingestion.ContextIdentityResolver, scheduler,
		ingestion.Options{
			DefaultSourceBucket: cfg.DefaultSourceBucket,
			TempBucketPrefix:    cfg.TempBucketPrefix,
			FallbackUserID:      cfg.FallbackUserID,
			FallbackProjectID:   cfg.FallbackProjectID,
		},
		logger,
	)

	validator := deps.Validator
	if validator == nil {
		if validator, err = newValidator(ctx, cfg.Auth); err != nil {
			return nil, err
		}
	}

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})
	opts := api.RouterOptions{RateLimit: limiter.Middleware, CORSOrigins: cfg.CORSAllowedOrigins}
	if validator != nil {
		opts.Auth = middleware.NewAuthenticator(validator, cfg.Auth.ProjectClaim, logger).Middleware()
	}
	handler := api.NewRouter(api.NewHandler(ingest, tempFiles, buckets, scheduler, logger), opts)

	return &App{
		Store:       store,
		Catalog:     catalog,
		Buckets:     buckets,
		TempFiles:   tempFiles,
		Scheduler:   scheduler,
		Ingestion:   ingest,
		RateLimiter: limiter,
		Handler:     handler,
	}, nil
}

// Start re-arms persisted reconciliations and starts the scheduler.
func (a *App) Start(ctx context.Context) error {
	return a.Scheduler.Start(ctx)
}

// Stop waits for in-flight reconciliation ticks.
func (a *App) Stop() {
	a.Scheduler.Stop()
}

// newValidator picks OIDC when an issuer is configured, then HS256, and
// returns nil when auth is disabled.
func newValidator(ctx context.Context, cfg config.AuthConfig) (middleware.TokenValidator, error) {
	switch {
	case cfg.IssuerURL != "":
		v, err := middleware.NewOIDCValidator(ctx, cfg.IssuerURL, cfg.Audience, cfg.AllowedIssuers)
		if err != nil {
			return nil, fmt.Errorf("oidc validator: %w", err)
		}
		return v, nil
	case cfg.JWTSecret != "":
		return middleware.NewHS256Validator(cfg.JWTSecret)
	default:
		return nil, nil
	}
}
