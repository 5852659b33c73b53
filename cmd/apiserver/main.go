// API server entry point: wires the extraction pipeline, storage, cache,
// and the HTTP interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appextraction "github.com/prescripto/prescripto/internal/application/extraction"
	"github.com/prescripto/prescripto/internal/config"
	"github.com/prescripto/prescripto/internal/domain/prescription"
	"github.com/prescripto/prescripto/internal/extraction/dosage"
	"github.com/prescripto/prescripto/internal/extraction/normalizer"
	"github.com/prescripto/prescripto/internal/extraction/parser"
	"github.com/prescripto/prescripto/internal/extraction/schedule"
	"github.com/prescripto/prescripto/internal/infrastructure/database/postgres"
	"github.com/prescripto/prescripto/internal/infrastructure/database/postgres/repositories"
	"github.com/prescripto/prescripto/internal/infrastructure/database/redis"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/prescripto/prescripto/internal/interfaces/http"
	"github.com/prescripto/prescripto/internal/interfaces/http/handlers"
	"github.com/prescripto/prescripto/internal/interfaces/http/middleware"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)
	logger.Info("starting prescripto api server", logging.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *configPath != "" {
		go watchConfig(ctx, *configPath, logger)
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api server failed", logging.Err(err))
	}
}

// watchConfig hot-reloads the safe subset of settings when the config file
// changes on disk. Currently that is the log level.
func watchConfig(ctx context.Context, path string, logger logging.Logger) {
	err := config.Watch(ctx, path,
		func(next *config.Config) {
			if ls, ok := logger.(logging.LevelSetter); ok {
				ls.SetLevel(next.Log.Level)
				logger.Info("log level reloaded", logging.String("level", next.Log.Level))
			}
		},
		func(err error) {
			logger.Warn("config reload failed", logging.Err(err))
		},
	)
	if err != nil && ctx.Err() == nil {
		logger.Warn("config watcher stopped", logging.Err(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	// Storage.
	if err := postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.MigrationPath); err != nil {
		return err
	}
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	rxRepo := repositories.NewPrescriptionRepository(conn.Pool(), logger)
	evRepo := repositories.NewReminderRepository(conn.Pool(), logger)

	// Pipeline. An explicit slot_order overrides the interpreter's built-in
	// per-length dash mapping.
	var dosageOpts []dosage.Option
	if len(cfg.Extraction.SlotOrder) > 0 {
		slotOrder := make([]prescription.Slot, 0, len(cfg.Extraction.SlotOrder))
		for _, name := range cfg.Extraction.SlotOrder {
			slot, err := prescription.ParseSlot(name)
			if err != nil {
				return err
			}
			slotOrder = append(slotOrder, slot)
		}
		dosageOpts = append(dosageOpts, dosage.WithSlotOrder(slotOrder))
	}
	docParser := parser.New(
		normalizer.New(),
		dosage.New(dosageOpts...),
		parser.WithLogger(logger.Named("parser")),
		parser.WithMaxFragmentLength(cfg.Extraction.MaxFragmentLength),
		parser.WithBatchConcurrency(cfg.Extraction.BatchConcurrency),
	)

	metrics := prometheus.New()
	svcOpts := []appextraction.Option{
		appextraction.WithLogger(logger.Named("extraction")),
		appextraction.WithMetrics(metrics),
	}

	// Cache is best-effort; the server runs without Redis.
	readiness := map[string]handlers.Pinger{"postgres": conn}
	if redisClient, err := redis.NewClient(cfg.Redis, logger); err != nil {
		logger.Warn("redis unavailable, result caching disabled", logging.Err(err))
	} else {
		defer redisClient.Close()
		cache := redis.NewCache(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.DefaultTTL, logger)
		svcOpts = append(svcOpts, appextraction.WithCache(cache, cfg.Extraction.CacheTTL))
		readiness["redis"] = redisClient
	}

	svc := appextraction.NewService(docParser, schedule.New(), rxRepo, evRepo, svcOpts...)

	// HTTP interface.
	router := httpserver.NewRouter(httpserver.RouterConfig{
		ExtractionHandler: handlers.NewExtractionHandler(svc, logger.Named("http")),
		HealthHandler:     handlers.NewHealthHandler(version, readiness),
		LoggingMiddleware: middleware.NewLoggingMiddleware(logger.Named("http"), metrics),
		MetricsHandler:    metrics.Handler(),
	})
	server := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return server.Shutdown(context.Background())
	}
}
