// Command reconciler runs the daily batch reconciliation pass.
//
// For one processing day (yesterday by default) it re-reads the claim log,
// rescores every validated claim, compares the results against the streaming
// pass, and saves an immutable discrepancy report. The command is a one-shot
// job intended to run from cron or a scheduler.
//
// Usage:
//
//	go run ./cmd/reconciler [-config configs/development.yaml] [-day 2026-08-28]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/claims/store"
	"github.com/akshay033333/medical-claims-pipeline/internal/quality"
	"github.com/akshay033333/medical-claims-pipeline/internal/reconcile"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
	"github.com/akshay033333/medical-claims-pipeline/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	day := flag.String("day", "", "processing day to reconcile (YYYY-MM-DD, default yesterday)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	target := *day
	if target == "" {
		target = claims.Day(time.Now().AddDate(0, 0, -1))
	}
	if _, err := time.Parse("2006-01-02", target); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -day %q: %v\n", target, err)
		os.Exit(1)
	}
	slog.Info("starting reconciliation", "day", target)

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

	engine, err := quality.NewEngine(cfg.Scoring)
	if err != nil {
		slog.Error("invalid scoring configuration", "error", err)
		os.Exit(1)
	}

	runner := reconcile.New(cfg.Reconcile, claimStore, engine, lookup, m)
	report, err := runner.Run(ctx, target)
	if err != nil {
		slog.Error("reconciliation failed", "error", err)
		os.Exit(1)
	}

	slog.Info("reconciliation report saved",
		"report_id", report.ReportID,
		"validated", report.ValidatedCount,
		"processed", report.ProcessedCount,
		"discrepancies", len(report.Discrepancies),
		"incomplete", report.Incomplete,
	)
	if report.Incomplete {
		os.Exit(2)
	}
}
