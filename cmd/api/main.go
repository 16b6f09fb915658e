package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-session/api/controllers"
	"github.com/angelmondragon/storefront-session/api/middleware"
	"github.com/angelmondragon/storefront-session/api/routes"
	"github.com/angelmondragon/storefront-session/internal/jobs"
	"github.com/angelmondragon/storefront-session/internal/localstore"
	"github.com/angelmondragon/storefront-session/internal/session"
	"github.com/angelmondragon/storefront-session/internal/storefront"
	"github.com/angelmondragon/storefront-session/pkg/cache"
	"github.com/angelmondragon/storefront-session/pkg/config"
	"github.com/angelmondragon/storefront-session/pkg/db"
	"github.com/angelmondragon/storefront-session/pkg/logger"
	"github.com/angelmondragon/storefront-session/pkg/metrics"
	"github.com/angelmondragon/storefront-session/pkg/migrate"
	"github.com/angelmondragon/storefront-session/pkg/pricing"
	"github.com/angelmondragon/storefront-session/pkg/redis"
)

const (
	cachePurgeJobName = "cache_purge"
	shutdownTimeout   = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeAutoRun(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = redis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(context.Background(), "error closing redis", err)
			}
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cacheMetrics := metrics.NewCacheMetrics(reg)
	cartMetrics := metrics.NewCartMetrics(reg)
	jobMetrics := metrics.NewJobMetrics(reg)

	registry := jobs.NewRegistry()
	var store cache.Store
	switch strings.ToLower(cfg.Cache.Driver) {
	case config.CacheDriverRedis:
		store = cache.NewRedis(redisClient, cfg.Cache.ScanBatch)
	default:
		mem := cache.NewMemory()
		store = mem
		registry.Register(jobs.Func{JobName: cachePurgeJobName, Fn: func(ctx context.Context) error {
			purged, err := mem.Purge(ctx)
			if purged > 0 {
				logg.Debug(logg.WithField(ctx, "purged", purged), "cache.purged")
			}
			return err
		}})
	}
	store = cache.NewInstrumented(store, cacheMetrics)

	upstream, err := storefront.NewClient(cfg.Upstream.BaseURL,
		storefront.WithHTTPClient(&http.Client{Timeout: cfg.Upstream.Timeout}),
		storefront.WithTokenSource(middleware.TokenFromContext),
		storefront.WithLogger(logg),
		storefront.WithBreaker(storefront.BreakerSettings{
			MaxRequests:  cfg.Upstream.BreakerMaxRequests,
			Interval:     cfg.Upstream.BreakerInterval,
			OpenTimeout:  cfg.Upstream.BreakerOpenTimeout,
			FailureRatio: cfg.Upstream.BreakerFailureRatio,
			MinRequests:  cfg.Upstream.BreakerMinRequests,
		}),
	)
	if err != nil {
		return err
	}

	manager, err := session.NewManager(session.ManagerParams{
		Deps: session.Deps{
			Remote:    upstream,
			Validator: upstream,
			Orders:    upstream,
			Cache:     store,
			Backup:    localstore.NewRepository(dbClient.DB()),
			Calculator: pricing.Calculator{
				TaxRate:               cfg.Pricing.TaxRate,
				FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
				FlatShippingFee:       cfg.Pricing.FlatShippingFee,
			},
			CartTTL:     cfg.Cache.CartTTL,
			Debounce:    cfg.Checkout.AutosaveDebounce,
			AutosaveTTL: cfg.Checkout.AutosaveTTL,
			Logger:      logg,
			Metrics:     cartMetrics,
		},
		IdleTTL:     cfg.Sessions.IdleTTL,
		LoadTimeout: cfg.Sessions.LoadTimeout,
	})
	if err != nil {
		return err
	}

	sweeper, err := jobs.NewRunner(jobs.RunnerParams{
		Logger:   logg,
		Registry: jobs.NewRegistry(manager.SweepJob()),
		Metrics:  jobMetrics,
		Interval: cfg.Sessions.SweepInterval,
	})
	if err != nil {
		return err
	}
	purger, err := jobs.NewRunner(jobs.RunnerParams{
		Logger:   logg,
		Registry: registry,
		Metrics:  jobMetrics,
		Interval: cfg.Cache.PurgeEvery,
	})
	if err != nil {
		return err
	}

	pingers := map[string]controllers.Pinger{"db": dbClient}
	if redisClient != nil {
		pingers["redis"] = redisClient
	}

	addr := ":" + cfg.App.Port
	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:       cfg,
			Logger:       logg,
			Sessions:     manager,
			Redis:        redisClient,
			Pingers:      pingers,
			BreakerState: upstream.BreakerState,
			Gatherer:     reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logCtx := logg.WithFields(ctx, map[string]any{
		"env":          cfg.App.Env,
		"addr":         addr,
		"cache_driver": cfg.Cache.Driver,
		"db_driver":    cfg.DB.Driver,
	})
	logg.Info(logCtx, "starting api server")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error { return purger.Run(gctx) })
	g.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(logCtx, "shutting down api server")
		serverErr := server.Shutdown(shutdownCtx)
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logg.Error(logCtx, "failed to flush sessions", err)
		}
		return serverErr
	})

	return g.Wait()
}
