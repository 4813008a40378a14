// Package main is the entry point for the flowd workflow server.
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
	"go.uber.org/zap"

	"github.com/formgrid/flowd/internal/access"
	"github.com/formgrid/flowd/internal/config"
	"github.com/formgrid/flowd/internal/definition"
	"github.com/formgrid/flowd/internal/observability"
	"github.com/formgrid/flowd/internal/transport"
	"github.com/formgrid/flowd/internal/workflow"
	"github.com/formgrid/flowd/model"
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
	configPath := flag.String("config", "config.yaml", "path to configuration file")
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

	tracingShutdown, err := observability.InitTracing(ctx, cfg.Observability.Tracing, "flowd", version)
	if err != nil {
		logger.Error("tracing initialization failed", zap.Error(err))
		return 1
	}

	metrics := observability.InitMetrics(prometheus.DefaultRegisterer)

	// Stores: one driver backs both definitions and instances.
	defStore, instStore, storeCloser, err := buildStores(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("storage initialization failed", zap.Error(err))
		return 1
	}

	// Seed workflow definitions from disk. Invalid files abort startup;
	// definitions already present in the store are left untouched.
	validator := definition.NewValidator()
	loader := definition.NewLoader(validator, logger)
	seeds, err := loader.LoadAll(cfg.Definitions.Directories)
	if err != nil {
		logger.Error("definition loading failed", zap.Error(err))
		return 1
	}
	if err := loader.Seed(ctx, defStore, seeds); err != nil {
		logger.Error("definition seeding failed", zap.Error(err))
		return 1
	}
	metrics.SetDefinitionsLoaded(float64(len(seeds)))
	logger.Info("definitions seeded", zap.Int("count", len(seeds)))

	resolver, err := buildAccessResolver(cfg.Access)
	if err != nil {
		logger.Error("access resolver initialization failed", zap.Error(err))
		return 1
	}

	engine := workflow.NewEngine(defStore, instStore, resolver, logger, workflow.Options{
		CASRetries:   cfg.Engine.CASRetries,
		TaskCacheTTL: cfg.Tasks.Cache.TTL,
		Metrics:      metrics,
	})

	readiness := observability.ReadinessChecks{
		DefinitionsLoaded: func() bool { return true },
	}
	if hc, ok := defStore.(observability.HealthChecker); ok {
		readiness.DefinitionStore = hc
	}
	if hc, ok := instStore.(observability.HealthChecker); ok {
		readiness.InstanceStore = hc
	}

	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Logger:      logger,
		Metrics:     metrics,
		Engine:      engine,
		Definitions: defStore,
		Validator:   validator,
		Access:      resolver,
		Readiness:   readiness,
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
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.Int("definitions", len(seeds)),
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

	// Stop accepting new connections and drain in-flight requests.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if storeCloser != nil {
		storeCloser()
	}

	if err := tracingShutdown(shutdownCtx); err != nil {
		logger.Error("tracing shutdown error", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return 0
}

// buildStores creates the definition and instance stores for the configured
// driver. Both stores share a connection pool on postgres.
func buildStores(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (definition.Store, workflow.Store, func(), error) {
	switch cfg.Driver {
	case "memory":
		logger.Info("using in-memory stores")
		return definition.NewMemoryStore(), workflow.NewMemoryStore(), nil, nil
	case "postgres":
		dsn := os.Getenv(cfg.DSNEnv)
		if dsn == "" {
			return nil, nil, nil, fmt.Errorf("storage: %s environment variable not set", cfg.DSNEnv)
		}

		poolCfg, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: parse DSN: %w", err)
		}
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("storage: connect: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, nil, fmt.Errorf("storage: ping: %w", err)
		}

		return definition.NewPgStore(pool), workflow.NewPgStore(pool), pool.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}
}

// buildAccessResolver creates the capability resolver for the configured
// policy evaluator.
func buildAccessResolver(cfg config.AccessConfig) (model.AccessResolver, error) {
	switch cfg.Evaluator {
	case "static", "":
		evaluator, err := access.NewStaticPolicyEvaluator(cfg.StaticPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("static policy: %w", err)
		}
		return access.NewResolver(evaluator, cfg.Cache.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported access evaluator: %q", cfg.Evaluator)
	}
}
