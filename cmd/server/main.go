/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the EPR fee engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (flags > env > .env > defaults)
  2. Build the logger
  3. Install built-in jurisdictions, then optional rate/rule documents
  4. Open the calculation store (memory, sqlite or postgres)
  5. Wire archive, metrics and the service
  6. Start the HTTP server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (-shutdown-timeout)
  3. Flush pending trace archives
  4. Close the database connection

EXAMPLES:
  # Run with file database
  ./server -db=./data/epr.db

  # Ephemeral, no database
  ./server -driver=memory

  # Postgres plus S3 trace archive (MinIO)
  EPR_POSTGRES_DSN=postgres://epr@localhost/epr ./server -driver=postgres \
    -archive-bucket=epr-traces -archive-endpoint=http://localhost:9000

SEE ALSO:
  - config/config.go: Settings and environment variables
  - api/server.go: Router configuration
  - jurisdictions/: Built-in rule sets
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/epr-engine/api"
	"github.com/warp/epr-engine/archive"
	"github.com/warp/epr-engine/config"
	"github.com/warp/epr-engine/engine"
	"github.com/warp/epr-engine/engine/store"
	"github.com/warp/epr-engine/factory"
	"github.com/warp/epr-engine/jurisdictions"
	"github.com/warp/epr-engine/observability"
	"github.com/warp/epr-engine/store/postgres"
	"github.com/warp/epr-engine/store/sqlite"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	// Rates and rule sets
	rates := engine.NewRateSchedule()
	rules := engine.NewRuleSetRegistry()
	if err := jurisdictions.Install(rates, rules); err != nil {
		return fmt.Errorf("install built-in jurisdictions: %w", err)
	}
	if cfg.RatesDir != "" {
		n, err := factory.InstallRates(os.DirFS(cfg.RatesDir), rates)
		if err != nil {
			return fmt.Errorf("load rates from %s: %w", cfg.RatesDir, err)
		}
		logger.Info("loaded rate schedules", zap.String("dir", cfg.RatesDir), zap.Int("entries", n))
	}
	if cfg.RulesDir != "" {
		n, err := factory.InstallRuleSets(os.DirFS(cfg.RulesDir), rules)
		if err != nil {
			return fmt.Errorf("load rule sets from %s: %w", cfg.RulesDir, err)
		}
		logger.Info("loaded rule sets", zap.String("dir", cfg.RulesDir), zap.Int("rule_sets", n))
	}

	// Storage
	calcStore, health, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("calculation store ready", zap.String("driver", cfg.DBDriver))

	// Service
	metrics := observability.NewMetrics()
	opts := []engine.ServiceOption{
		engine.WithLogger(logger),
		engine.WithMetrics(metrics),
	}
	if cfg.ArchiveBucket != "" {
		s3Archive, err := archive.New(ctx, archive.Config{
			Bucket:   cfg.ArchiveBucket,
			Region:   cfg.ArchiveRegion,
			Endpoint: cfg.ArchiveEndpoint,
		})
		if err != nil {
			return fmt.Errorf("trace archive: %w", err)
		}
		retrier := archive.NewRetrier(s3Archive, logger)
		retrier.Start()
		defer retrier.Stop()
		opts = append(opts, engine.WithArchive(retrier))
		logger.Info("trace archive enabled", zap.String("bucket", cfg.ArchiveBucket))
	}
	svc := engine.NewService(rates, rules, engine.NewCalculationLedger(calcStore), opts...)

	handler := api.NewHandler(svc)
	handler.Health = health
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:  logger,
		Metrics: metrics.Handler(),
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", server.Addr),
			zap.Strings("jurisdictions", jurisdictionCodes(svc)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore returns the configured store, its health probe and a closer.
func openStore(ctx context.Context, cfg config.Config) (engine.Store, func(context.Context) error, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		return store.NewMemory(), nil, func() {}, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return s, s.Ping, func() { _ = s.Close() }, nil

	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s.Ping, func() { _ = s.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

func jurisdictionCodes(svc *engine.Service) []string {
	var codes []string
	for _, j := range svc.Jurisdictions() {
		codes = append(codes, string(j.Code))
	}
	return codes
}
