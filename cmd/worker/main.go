// Dispatch worker entry point: polls for due reminder events and publishes
// them to the notification topic.
package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prescripto/prescripto/internal/application/dispatch"
	"github.com/prescripto/prescripto/internal/config"
	"github.com/prescripto/prescripto/internal/infrastructure/database/postgres"
	"github.com/prescripto/prescripto/internal/infrastructure/database/postgres/repositories"
	"github.com/prescripto/prescripto/internal/infrastructure/messaging/kafka"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/logging"
	"github.com/prescripto/prescripto/internal/infrastructure/monitoring/prometheus"
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
	logger.Info("starting prescripto dispatch worker", logging.String("version", version))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !stderrors.Is(err, context.Canceled) {
		logger.Fatal("dispatch worker failed", logging.Err(err))
	}
	logger.Info("dispatch worker stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadFromEnv()
}

func run(ctx context.Context, cfg *config.Config, logger logging.Logger) error {
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	loc, err := time.LoadLocation(cfg.Worker.Timezone)
	if err != nil {
		return err
	}
	producer := kafka.NewProducer(cfg.Kafka, logger.Named("kafka"), kafka.WithTimezone(loc))
	defer producer.Close()

	svc := dispatch.NewService(
		repositories.NewReminderRepository(conn.Pool(), logger),
		producer,
		dispatch.WithLogger(logger.Named("dispatch")),
		dispatch.WithMetrics(prometheus.New()),
		dispatch.WithBatchSize(cfg.Worker.BatchSize),
	)
	return svc.Run(ctx, cfg.Worker.PollInterval)
}
