// dispatchd runs the webhook delivery engine with its HTTP management API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	dispatch "github.com/veloxpay/dispatch"
	"github.com/veloxpay/dispatch/api"
	"github.com/veloxpay/dispatch/observability"
	dispatchstore "github.com/veloxpay/dispatch/store"
	"github.com/veloxpay/dispatch/store/bunstore"
	"github.com/veloxpay/dispatch/store/memory"
	"github.com/veloxpay/dispatch/store/redis"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	d, err := dispatch.New(
		dispatch.WithStore(st),
		dispatch.WithLogger(logger),
		dispatch.WithConcurrency(cfg.Concurrency),
		dispatch.WithPollInterval(cfg.PollInterval),
		dispatch.WithBatchSize(cfg.BatchSize),
		dispatch.WithRequestTimeout(cfg.RequestTimeout),
		dispatch.WithMaxRetries(cfg.MaxRetries),
		dispatch.WithCatalogStrict(cfg.CatalogStrict),
		dispatch.WithShutdownTimeout(cfg.ShutdownTimeout),
		dispatch.WithMetrics(metrics),
		dispatch.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		return fmt.Errorf("init dispatcher: %w", err)
	}

	d.Start(ctx)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.Handlers(d, api.Options{
			RequestTimeout: cfg.RequestTimeout,
			MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}),
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dispatchd listening", "addr", cfg.Addr, "backend", cfg.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	d.Stop(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func openStore(cfg *config) (dispatchstore.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "redis":
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		return redis.New(rdb), nil
	case "postgres":
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		return bunstore.New(bun.NewDB(sqldb, pgdialect.New())), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file:dispatch.db?_journal_mode=WAL&_busy_timeout=5000"
		}
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		return bunstore.New(bun.NewDB(sqldb, sqlitedialect.New())), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
