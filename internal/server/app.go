// Package server builds the application's dependencies and runs its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/labor-stats-dashboard/internal/api"
	"github.com/JakeFAU/labor-stats-dashboard/internal/cache"
	"github.com/JakeFAU/labor-stats-dashboard/internal/clock"
	"github.com/JakeFAU/labor-stats-dashboard/internal/config"
	"github.com/JakeFAU/labor-stats-dashboard/internal/dashboard"
	"github.com/JakeFAU/labor-stats-dashboard/internal/etl"
	"github.com/JakeFAU/labor-stats-dashboard/internal/fetcher/datagov"
	"github.com/JakeFAU/labor-stats-dashboard/internal/id/uuid"
	"github.com/JakeFAU/labor-stats-dashboard/internal/logging"
	"github.com/JakeFAU/labor-stats-dashboard/internal/storage"
	memorystore "github.com/JakeFAU/labor-stats-dashboard/internal/storage/memory"
	pgstore "github.com/JakeFAU/labor-stats-dashboard/internal/storage/postgres"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     storage.Provider
	redis     *cache.RedisTier
	pipeline  *etl.Pipeline
	scheduler *etl.Scheduler
	service   *dashboard.Service
	apiServer *api.Server
}

// Build creates the application's dependencies. logger may be nil, in which case one is built
// from cfg.Logging.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		var err error
		logger, err = logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("postgres", cfg.DB.DSN != ""),
		zap.Bool("redis", cfg.Cache.RedisURL != ""),
		zap.String("etl_schedule", cfg.ETL.Schedule),
	)

	store, err := setupStore(ctx, app)
	if err != nil {
		return nil, err
	}
	app.store = store

	manager, err := setupCache(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	clk := clock.New()
	ids := uuid.New()
	fetcher := datagov.New(datagov.Config{
		URL:        cfg.Dataset.URL,
		APIKey:     cfg.Dataset.APIKey,
		UserAgent:  cfg.Dataset.UserAgent,
		Timeout:    cfg.FetchTimeout(),
		MaxRetries: cfg.Dataset.MaxRetries,
		BaseDelay:  time.Duration(cfg.Dataset.BackoffInitialMs) * time.Millisecond,
		MaxDelay:   time.Duration(cfg.Dataset.BackoffMaxMs) * time.Millisecond,
		Limit:      cfg.Dataset.Limit,
	}, logger)

	app.pipeline, err = etl.NewPipeline(fetcher, store, clk, ids, etl.Config{
		Dataset: cfg.Dataset.Name,
		Limit:   cfg.Dataset.Limit,
	}, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("etl pipeline init failed: %w", err)
	}

	app.scheduler, err = etl.NewScheduler(app.pipeline, cfg.ETL.Schedule, cfg.ETL.RunOnStart, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("etl scheduler init failed: %w", err)
	}

	app.service, err = dashboard.NewService(manager, fetcher, app.pipeline, clk, dashboard.Config{
		FetchLimit: cfg.Dataset.Limit,
	}, logger)
	if err != nil {
		app.closeInfrastructure()
		return nil, fmt.Errorf("dashboard service init failed: %w", err)
	}

	app.apiServer = api.NewServer(app.service, store, ids, clk, *cfg, logger)
	return app, nil
}

func setupStore(ctx context.Context, app *App) (storage.Provider, error) {
	if app.cfg.DB.DSN == "" {
		app.logger.Info("no database configured, using in-memory store")
		return memorystore.NewReconcileStore(), nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:      app.cfg.DB.DSN,
		MaxConns: app.cfg.DB.MaxConns,
		MinConns: app.cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres init failed: %w", err)
	}
	if app.cfg.DB.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("postgres schema init failed: %w", err)
		}
	}
	app.logger.Info("using postgres store")
	return store, nil
}

// setupCache builds the tier manager. An unreachable Redis at startup is logged and kept; the
// manager degrades to the local tier per call.
func setupCache(ctx context.Context, app *App) (*cache.Manager, error) {
	local := cache.NewLocalTier(cache.FallbackTTL)
	if app.cfg.Cache.RedisURL == "" {
		app.logger.Info("no redis configured, caching in process only")
		return cache.NewManager(nil, local, app.cfg.CacheTimeout(), app.logger), nil
	}
	tier, err := cache.NewRedisTier(cache.RedisConfig{
		URL:          app.cfg.Cache.RedisURL,
		Namespace:    app.cfg.Cache.Namespace,
		DialTimeout:  app.cfg.CacheTimeout(),
		ReadTimeout:  app.cfg.CacheTimeout(),
		WriteTimeout: app.cfg.CacheTimeout(),
		PoolSize:     app.cfg.Cache.PoolSize,
	})
	if err != nil {
		return nil, fmt.Errorf("redis init failed: %w", err)
	}
	app.redis = tier
	pingCtx, cancel := context.WithTimeout(ctx, app.cfg.CacheTimeout())
	defer cancel()
	if err := tier.Ping(pingCtx); err != nil {
		app.logger.Warn("redis unreachable at startup, serving from local cache until it recovers", zap.Error(err))
	} else {
		app.logger.Info("redis connected")
	}
	return cache.NewManager(tier, local, app.cfg.CacheTimeout(), app.logger), nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// RunETL performs one ingestion cycle.
func (a *App) RunETL(ctx context.Context) (etl.Result, error) {
	res, err := a.pipeline.Run(ctx)
	if err != nil {
		return res, fmt.Errorf("etl run failed: %w", err)
	}
	return res, nil
}

// Run serves HTTP and the ETL schedule until the context is canceled or a signal arrives.
// The caller still owns Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.scheduler.Start(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.scheduler.Stop()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases infrastructure and flushes the logger.
func (a *App) Close(_ context.Context) error {
	a.closeInfrastructure()
	a.logger.Info("shutdown complete")
	// Sync fails on console outputs such as /dev/stderr; nothing useful to do with it.
	_ = a.logger.Sync()
	return nil
}

func (a *App) closeInfrastructure() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("redis close failed", zap.Error(err))
		}
		a.redis = nil
	}
	if a.store != nil {
		a.store.Close()
		a.store = nil
	}
}
