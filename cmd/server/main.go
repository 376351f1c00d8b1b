package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"outletpos/internal/cache"
	"outletpos/internal/config"
	"outletpos/internal/httpapi"
	"outletpos/internal/logger"
	"outletpos/internal/metrics"
	"outletpos/internal/service"
	"outletpos/internal/store"
	"outletpos/internal/store/memory"
	pgstore "outletpos/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Options{ServiceName: "outletpos"})
		bootLog.Error(context.Background(), "load config", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		ServiceName: "outletpos",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Format:      cfg.LogFormat,
	})

	if err := cfg.Validate(); err != nil {
		log.Error(context.Background(), "invalid security configuration", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(context.Background(), "server stopped with error", err)
		os.Exit(1)
	}
	log.Info(context.Background(), "server stopped")
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for _, closeFn := range closers {
			err = multierr.Append(err, closeFn())
		}
	}()

	startupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	repo, closeRepo, err := openRepository(startupCtx, cfg, log)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	views, closeViews := openViewCache(startupCtx, cfg, log)
	if closeViews != nil {
		closers = append(closers, closeViews)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	svc := service.New(repo, views, metrics.NewPOSMetrics(reg), log, service.Options{
		LowStockThreshold: cfg.LowStockThreshold,
		ViewCacheTTL:      cfg.ViewCacheTTL,
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL)
	api := httpapi.New(svc, auth, log, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		TrustProxy:    cfg.TrustProxy,
		Gatherer:      reg,
	})

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Event(ctx, zerolog.InfoLevel).Str("addr", cfg.Address()).Msg("outletpos listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

// openRepository refuses to fall back to memory when DATABASE_URL is set.
func openRepository(ctx context.Context, cfg config.Config, log *logger.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		log.Info(ctx, "repository: in-memory demo tenant")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL, pgstore.Options{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
		ConnectTimeout:  cfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := pg.Migrate(ctx); err != nil {
			return nil, nil, multierr.Append(err, pg.Close())
		}
	}
	log.Info(ctx, "repository: postgres")
	return pg, pg.Close, nil
}

// openViewCache degrades to a no-op cache when Redis is unset or unreachable.
func openViewCache(ctx context.Context, cfg config.Config, log *logger.Logger) (cache.ViewCache, func() error) {
	if cfg.RedisAddr == "" {
		log.Info(ctx, "view cache: noop")
		return cache.NoopViewCache{}, nil
	}
	redisCache := cache.NewRedisViewCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn(ctx, "redis unavailable, using noop view cache", err)
		_ = redisCache.Close()
		return cache.NoopViewCache{}, nil
	}
	log.Info(ctx, "view cache: redis")
	return redisCache, redisCache.Close
}
