// Command processor starts the streaming claim enrichment service.
//
// The service consumes validated claims from Kafka, partitions them by
// patient id, and runs each partition through short processing windows:
// reference-data enrichment, fraud heuristics, and quality scoring. Results
// go to the processed, alerts, and quality topics and to the claim log.
//
// Usage:
//
//	go run ./cmd/processor [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims/store"
	"github.com/akshay033333/medical-claims-pipeline/internal/processor"
	"github.com/akshay033333/medical-claims-pipeline/internal/quality"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/kafka"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
	"github.com/akshay033333/medical-claims-pipeline/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting processor service", "partitions", cfg.Processor.Partitions)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	claimStore, err := store.New(ctx, db)
	if err != nil {
		slog.Error("failed to initialize claim log", "error", err)
		os.Exit(1)
	}

	m := metrics.New()
	lookup, err := refdata.NewClient(cfg.RefData, m)
	if err != nil {
		slog.Error("failed to initialize reference-data client", "error", err)
		os.Exit(1)
	}
	slog.Info("reference data pinned", "version", lookup.Snapshot().Version)

	engine, err := quality.NewEngine(cfg.Scoring)
	if err != nil {
		slog.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}

	processedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Processed)
	defer processedProducer.Close()
	alertsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Alerts)
	defer alertsProducer.Close()
	qualityProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Quality)
	defer qualityProducer.Close()

	proc := processor.New(cfg.Processor, lookup, engine, claimStore,
		processedProducer, alertsProducer, qualityProducer, m)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Validated, proc.Handler())

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	slog.Info("processor ready, consuming from kafka",
		"topic", cfg.Kafka.Topics.Validated,
		"group", cfg.Kafka.ConsumerGroup,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(gctx) })
	g.Go(func() error { return consumer.Start(gctx) })
	if err := g.Wait(); err != nil && err != context.Canceled {
		slog.Error("processor error", "error", err)
	}

	if stopMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := stopMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown error", "error", err)
		}
	}
	slog.Info("processor service stopped")
}
