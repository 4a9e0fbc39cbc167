// Package main is the entry point for the genway gateway server.
// It wires all dependencies together and starts the HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/genway/genway/internal/config"
	"github.com/genway/genway/internal/dispatch"
	"github.com/genway/genway/internal/observability"
	"github.com/genway/genway/internal/registry"
	"github.com/genway/genway/internal/transport"
	"github.com/genway/genway/internal/workflow"
)

// Build-time variables set via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0 -X main.commit=abc1234"
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (empty uses defaults and environment)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return 1
	}

	observability.Version = version
	observability.Commit = commit

	logger, err := observability.NewLogger(cfg.Observability)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		return 1
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "genway", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Stores. Each concern can be backed by memory or postgres independently.
	regStore, regCloser, err := buildRegistryStore(ctx, cfg.Registry.Store, logger)
	if err != nil {
		logger.Error("registry store initialization failed", zap.Error(err))
		return 1
	}
	resultStore, resultCloser, err := buildResultStore(ctx, cfg.Dispatch.Results, logger)
	if err != nil {
		logger.Error("result store initialization failed", zap.Error(err))
		return 1
	}
	runStore, runCloser, err := buildRunStore(ctx, cfg.Workflow.Store, logger)
	if err != nil {
		logger.Error("workflow store initialization failed", zap.Error(err))
		return 1
	}

	reg, err := registry.New(ctx, regStore, logger)
	if err != nil {
		logger.Error("registry initialization failed", zap.Error(err))
		return 1
	}
	if cfg.Registry.SeedPresets {
		if err := reg.Seed(ctx, registry.Presets()); err != nil {
			logger.Error("preset seeding failed", zap.Error(err))
			return 1
		}
	}

	dispatchOpts := []dispatch.Option{
		dispatch.WithTimeout(cfg.Dispatch.Timeout),
		dispatch.WithMaxResponseBytes(cfg.Dispatch.MaxResponseBytes),
		dispatch.WithMetrics(metrics),
	}
	idemStore, idemCloser := buildIdempotencyStore(cfg.Idempotency, logger)
	if idemStore != nil {
		dispatchOpts = append(dispatchOpts,
			dispatch.WithIdempotency(idemStore, cfg.Idempotency.Store.DefaultTTL))
	}
	dispatcher := dispatch.NewDispatcher(reg, resultStore, logger, dispatchOpts...)

	engine := workflow.NewEngine(dispatcher, runStore, logger, workflow.WithMetrics(metrics))

	authenticator, err := transport.NewJWTAuthenticator(cfg.Auth)
	if err != nil {
		logger.Error("authenticator initialization failed", zap.Error(err))
		return 1
	}

	readiness := observability.ReadinessChecks{
		RegistryLoaded: func() bool { return reg != nil },
	}
	if hc, ok := resultStore.(observability.HealthChecker); ok {
		readiness.ResultStore = hc
	}
	if hc, ok := runStore.(observability.HealthChecker); ok {
		readiness.WorkflowStore = hc
	}
	if hc, ok := idemStore.(observability.HealthChecker); ok {
		readiness.IdempotencyStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:        cfg,
		Logger:        logger,
		Metrics:       metrics,
		Authenticator: authenticator,
		Registry:      reg,
		Generator:     dispatcher,
		Results:       resultStore,
		Workflows:     engine,
		Readiness:     readiness,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("version", version),
		zap.String("commit", commit),
		zap.Int("providers", len(reg.List())),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		return 1
	}

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	// Stop accepting new connections and drain in-flight requests, then let
	// running workflows persist their final state.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Error("workflow engine shutdown error", zap.Error(err))
	}

	for _, closer := range []func(){regCloser, resultCloser, runCloser, idemCloser} {
		if closer != nil {
			closer()
		}
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

func newPool(ctx context.Context, cfg config.StoreConfig) (*pgxpool.Pool, error) {
	dsn := os.Getenv(cfg.DSNEnv)
	if dsn == "" {
		return nil, fmt.Errorf("%s environment variable not set", cfg.DSNEnv)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN from %s: %w", cfg.DSNEnv, err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging: %w", err)
	}
	return pool, nil
}

func buildRegistryStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (registry.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory registry store")
		return registry.NewMemoryStore(), nil, nil
	case "postgres":
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("registry store: %w", err)
		}
		logger.Info("using postgres registry store")
		return registry.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("registry store: unsupported driver %q", cfg.Driver)
	}
}

func buildResultStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (dispatch.ResultStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory result store")
		return dispatch.NewMemoryResultStore(), nil, nil
	case "postgres":
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("result store: %w", err)
		}
		logger.Info("using postgres result store")
		return dispatch.NewPgResultStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("result store: unsupported driver %q", cfg.Driver)
	}
}

func buildRunStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (workflow.RunStore, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory workflow store")
		return workflow.NewMemoryRunStore(), nil, nil
	case "postgres":
		pool, err := newPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("workflow store: %w", err)
		}
		logger.Info("using postgres workflow store")
		return workflow.NewPgRunStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("workflow store: unsupported driver %q", cfg.Driver)
	}
}

// buildIdempotencyStore returns nil when idempotency is disabled; the
// dispatcher then treats every request as unique.
func buildIdempotencyStore(cfg config.IdempotencyConfig, logger *zap.Logger) (dispatch.IdempotencyStore, func()) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Store.Driver {
	case "redis":
		addr := os.Getenv(cfg.Store.AddrEnv)
		if addr == "" {
			logger.Warn("idempotency enabled but redis address not set, falling back to memory",
				zap.String("addr_env", cfg.Store.AddrEnv))
			return dispatch.NewMemoryIdempotencyStore(), nil
		}
		client := redis.NewClient(&redis.Options{Addr: addr, DB: cfg.Store.DB})
		logger.Info("using redis idempotency store", zap.String("addr", addr))
		return dispatch.NewRedisIdempotencyStore(client), func() { client.Close() }
	default:
		logger.Info("using in-memory idempotency store")
		return dispatch.NewMemoryIdempotencyStore(), nil
	}
}
