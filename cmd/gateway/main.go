// Command gateway starts the claim ingestion HTTP service.
//
// The service accepts raw claim submissions via POST /api/v1/claims,
// validates them, deduplicates resubmissions by claim id, records every
// decision in the claim log, and publishes accepted claims to Kafka for the
// streaming processor. Every submission receives a receipt, rejected or not.
// A health endpoint is provided at GET /health.
//
// Usage:
//
//	go run ./cmd/gateway [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims/store"
	"github.com/akshay033333/medical-claims-pipeline/internal/gateway"
	"github.com/akshay033333/medical-claims-pipeline/internal/gateway/handler"
	"github.com/akshay033333/medical-claims-pipeline/internal/gateway/ratelimit"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/health"
	"github.com/akshay033333/medical-claims-pipeline/pkg/kafka"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
	"github.com/akshay033333/medical-claims-pipeline/pkg/middleware"
	"github.com/akshay033333/medical-claims-pipeline/pkg/postgres"
	"github.com/akshay033333/medical-claims-pipeline/pkg/redis"
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
	slog.Info("starting gateway service", "port", cfg.Server.Port)

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
	slog.Info("claim log ready")

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	rawProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Raw)
	defer rawProducer.Close()
	validatedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Validated)
	defer validatedProducer.Close()
	rejectedProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Rejected)
	defer rejectedProducer.Close()
	slog.Info("kafka producers initialized",
		"raw", cfg.Kafka.Topics.Raw,
		"validated", cfg.Kafka.Topics.Validated,
		"rejected", cfg.Kafka.Topics.Rejected,
	)

	m := metrics.New()
	limiter := ratelimit.New(cfg.Gateway.SourceRateWindow)
	deduper := gateway.NewRedisDeduper(redisClient, cfg.Redis.DedupTTL)
	gw := gateway.New(cfg.Gateway, rawProducer, validatedProducer, rejectedProducer, deduper, claimStore, m,
		gateway.WithRateLimiter(func(source string) bool {
			return limiter.Allow(source, cfg.Gateway.SourceRateLimit)
		}),
	)

	checker := health.NewChecker()
	checker.Register("postgres", health.PingCheck(db.DB.PingContext))
	checker.Register("redis", health.PingCheck(redisClient.Ping))

	h := handler.New(gw, checker)
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/claims", h.Submit)
	mux.HandleFunc("GET /api/v1/claims/{claimID}/receipt", h.Receipt)
	mux.HandleFunc("GET /health", h.Health)

	var httpHandler http.Handler = mux
	httpHandler = middleware.Timeout(cfg.Server.WriteTimeout)(httpHandler)
	httpHandler = middleware.Metrics(m)(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var stopMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		stopMetrics = metrics.StartServer(cfg.Metrics.Port)
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if stopMetrics != nil {
			if err := stopMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("gateway service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("gateway service stopped")
}
