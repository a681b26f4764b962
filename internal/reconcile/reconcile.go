// Package reconcile implements the daily batch pass: it re-reads the claim
// log for one processing day, rescores every validated claim against the
// current reference data, and reports where the batch results diverge from
// what the streaming pass produced. The report is the pipeline's answer to
// "did streaming drop or mis-score anything yesterday".
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/quality"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
)

// Discrepancy kinds.
const (
	KindStreamingDrift  = "STREAMING_DRIFT"
	KindScoreDivergence = "SCORE_DIVERGENCE"
)

// Discrepancy is one finding in a daily report.
type Discrepancy struct {
	Kind           string  `json:"kind"`
	ClaimID        string  `json:"claim_id,omitempty"`
	Detail         string  `json:"detail"`
	StreamingScore float64 `json:"streaming_score,omitempty"`
	BatchScore     float64 `json:"batch_score,omitempty"`
}

// Report is the immutable output of one reconciliation run.
type Report struct {
	ReportID       string        `json:"report_id"`
	Day            string        `json:"day"`
	GeneratedAt    time.Time     `json:"generated_at"`
	ValidatedCount int           `json:"validated_count"`
	ProcessedCount int           `json:"processed_count"`
	Discrepancies  []Discrepancy `json:"discrepancies"`
	// Incomplete marks a run that hit its deadline before rescoring every
	// claim. The report is still saved; partial truth beats silence.
	Incomplete     bool   `json:"incomplete"`
	RefDataVersion string `json:"ref_data_version"`
}

// Store is the slice of the claim log the reconciler reads and writes.
type Store interface {
	ValidatedClaims(ctx context.Context, day string) ([]claims.Claim, error)
	ProcessedClaims(ctx context.Context, day string) ([]claims.ProcessedEvent, error)
	QualityByPass(ctx context.Context, day string, pass claims.PassKind) (map[string]claims.QualityMetrics, error)
	RecordQuality(ctx context.Context, day string, m *claims.QualityMetrics) error
	SaveReport(ctx context.Context, reportID, day string, report any) error
}

// Runner executes reconciliation runs.
type Runner struct {
	cfg     config.ReconcileConfig
	store   Store
	engine  *quality.Engine
	lookup  refdata.Lookup
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Runner.
func New(cfg config.ReconcileConfig, store Store, engine *quality.Engine, lookup refdata.Lookup, m *metrics.Metrics) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		lookup:  lookup,
		metrics: m,
		logger:  logger.WithComponent("reconciler"),
	}
}

// Run reconciles one processing day and saves the report. The run is bounded
// by the configured deadline; on expiry — even during the initial store
// loads — the report is saved with whatever was reconciled so far and marked
// incomplete.
func (r *Runner) Run(ctx context.Context, day string) (*Report, error) {
	snap := r.lookup.Snapshot()
	report := &Report{
		ReportID:       uuid.NewString(),
		Day:            day,
		RefDataVersion: snap.Version,
	}
	log := r.logger.With("report_id", report.ReportID, "day", day)
	log.Info("reconciliation run starting", "deadline", r.cfg.Deadline)

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Deadline)
	defer cancel()

	validated, err := r.store.ValidatedClaims(runCtx, day)
	if err != nil {
		if runCtx.Err() != nil {
			report.Incomplete = true
			return r.finalize(ctx, report, log)
		}
		r.metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("loading validated claims for %s: %w", day, err)
	}
	processed, err := r.store.ProcessedClaims(runCtx, day)
	if err != nil {
		if runCtx.Err() != nil {
			report.Incomplete = true
			return r.finalize(ctx, report, log)
		}
		r.metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("loading processed claims for %s: %w", day, err)
	}
	streaming, err := r.store.QualityByPass(runCtx, day, claims.PassStreaming)
	if err != nil {
		if runCtx.Err() != nil {
			report.Incomplete = true
			return r.finalize(ctx, report, log)
		}
		r.metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("loading streaming quality metrics for %s: %w", day, err)
	}

	report.ValidatedCount = len(validated)
	report.ProcessedCount = len(processed)
	report.Discrepancies = append(report.Discrepancies, r.driftFindings(validated, processed)...)

	divergences, incomplete := r.rescore(runCtx, day, validated, streaming, snap)
	report.Discrepancies = append(report.Discrepancies, divergences...)
	report.Incomplete = incomplete
	return r.finalize(ctx, report, log)
}

// finalize stamps, saves, and records a report. It takes the parent context:
// a deadline hit inside the run must not also discard the report about it.
func (r *Runner) finalize(ctx context.Context, report *Report, log *slog.Logger) (*Report, error) {
	report.GeneratedAt = time.Now().UTC()
	if err := r.store.SaveReport(ctx, report.ReportID, report.Day, report); err != nil {
		r.metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("saving report %s: %w", report.ReportID, err)
	}

	gap := report.ValidatedCount - report.ProcessedCount
	r.metrics.ReconcileDrift.Set(float64(gap))
	outcome := "complete"
	if report.Incomplete {
		outcome = "incomplete"
	}
	r.metrics.ReconcileRuns.WithLabelValues(outcome).Inc()
	log.Info("reconciliation run finished",
		"validated", report.ValidatedCount,
		"processed", report.ProcessedCount,
		"discrepancies", len(report.Discrepancies),
		"incomplete", report.Incomplete,
	)
	return report, nil
}

// driftFindings compares what the gateway validated against what the
// streaming processor emitted. Any gap of one claim or more is a finding,
// with the missing claim ids attributed individually.
func (r *Runner) driftFindings(validated []claims.Claim, processed []claims.ProcessedEvent) []Discrepancy {
	gap := len(validated) - len(processed)
	if gap < 1 {
		return nil
	}

	seen := make(map[string]struct{}, len(processed))
	for _, event := range processed {
		seen[event.Claim.ClaimID] = struct{}{}
	}
	var missing []string
	for _, c := range validated {
		if _, ok := seen[c.ClaimID]; !ok {
			missing = append(missing, c.ClaimID)
		}
	}
	sort.Strings(missing)

	findings := []Discrepancy{{
		Kind:   KindStreamingDrift,
		Detail: fmt.Sprintf("%d validated claims never emerged from the streaming processor", gap),
	}}
	for _, claimID := range missing {
		findings = append(findings, Discrepancy{
			Kind:    KindStreamingDrift,
			ClaimID: claimID,
			Detail:  "validated but not processed",
		})
	}
	return findings
}

// rescore runs the batch scoring pass over every validated claim and
// compares each batch score against its streaming counterpart. Scoring is
// fanned out across the configured workers; results are deterministic
// regardless of worker count because each claim is scored independently.
func (r *Runner) rescore(ctx context.Context, day string, validated []claims.Claim, streaming map[string]claims.QualityMetrics, snap refdata.Snapshot) ([]Discrepancy, bool) {
	var (
		mu          sync.Mutex
		divergences []Discrepancy
		incomplete  bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := range validated {
		c := &validated[i]
		g.Go(func() error {
			if gctx.Err() != nil {
				mu.Lock()
				incomplete = true
				mu.Unlock()
				return nil
			}
			qm := r.engine.Score(c, claims.PassBatch, snap)
			if err := r.store.RecordQuality(gctx, day, &qm); err != nil {
				r.logger.Error("failed to record batch quality metrics",
					"claim_id", c.ClaimID,
					"error", err,
				)
				mu.Lock()
				incomplete = true
				mu.Unlock()
				return nil
			}
			prior, ok := streaming[c.ClaimID]
			if !ok {
				// Covered by the drift findings; nothing to compare.
				return nil
			}
			if diff := qm.OverallScore - prior.OverallScore; diff > r.cfg.ScoreTolerance || -diff > r.cfg.ScoreTolerance {
				mu.Lock()
				divergences = append(divergences, Discrepancy{
					Kind:           KindScoreDivergence,
					ClaimID:        c.ClaimID,
					Detail:         fmt.Sprintf("batch score %.1f differs from streaming score %.1f", qm.OverallScore, prior.OverallScore),
					StreamingScore: prior.OverallScore,
					BatchScore:     qm.OverallScore,
				})
				mu.Unlock()
			}
			r.metrics.QualityScore.WithLabelValues(string(claims.PassBatch)).Observe(qm.OverallScore)
			return nil
		})
	}
	// Workers always return nil; failures are folded into incomplete.
	_ = g.Wait()

	if ctx.Err() != nil {
		incomplete = true
	}
	sort.Slice(divergences, func(i, j int) bool { return divergences[i].ClaimID < divergences[j].ClaimID })
	return divergences, incomplete
}
