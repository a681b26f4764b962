package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/claims/claimtest"
	"github.com/akshay033333/medical-claims-pipeline/internal/quality"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
)

const testDay = "2023-08-05"

// memLog is an in-memory reconcile.Store.
type memLog struct {
	mu        sync.Mutex
	validated []claims.Claim
	processed []claims.ProcessedEvent
	streaming map[string]claims.QualityMetrics
	batch     []claims.QualityMetrics
	reports   map[string]any
}

func newMemLog() *memLog {
	return &memLog{
		streaming: make(map[string]claims.QualityMetrics),
		reports:   make(map[string]any),
	}
}

func (s *memLog) ValidatedClaims(ctx context.Context, day string) ([]claims.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]claims.Claim(nil), s.validated...), nil
}

func (s *memLog) ProcessedClaims(ctx context.Context, day string) ([]claims.ProcessedEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]claims.ProcessedEvent(nil), s.processed...), nil
}

func (s *memLog) QualityByPass(ctx context.Context, day string, pass claims.PassKind) (map[string]claims.QualityMetrics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]claims.QualityMetrics, len(s.streaming))
	for k, v := range s.streaming {
		out[k] = v
	}
	return out, nil
}

func (s *memLog) RecordQuality(ctx context.Context, day string, m *claims.QualityMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, *m)
	return nil
}

func (s *memLog) SaveReport(ctx context.Context, reportID, day string, report any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[reportID] = report
	return nil
}

type staticLookup struct{}

func (staticLookup) Provider(ctx context.Context, id string) (*refdata.ProviderInfo, error) {
	return &refdata.ProviderInfo{ProviderID: id}, nil
}

func (staticLookup) Payer(ctx context.Context, id string) (*refdata.PayerInfo, error) {
	return &refdata.PayerInfo{PayerID: id}, nil
}

func (staticLookup) Snapshot() refdata.Snapshot {
	return refdata.DefaultSnapshot("test-v1")
}

func newRunner(t *testing.T, store Store, cfg config.ReconcileConfig) *Runner {
	t.Helper()
	engine, err := quality.NewEngine(config.ScoringConfig{
		CompletenessWeight: 0.30,
		ConsistencyWeight:  0.40,
		BusinessWeight:     0.30,
	})
	require.NoError(t, err)
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	return New(cfg, store, engine, staticLookup{}, m)
}

func testReconcileConfig() config.ReconcileConfig {
	return config.ReconcileConfig{
		Deadline:       time.Minute,
		Workers:        4,
		ScoreTolerance: 1.0,
	}
}

// seed fills the log with n validated-and-processed claims whose streaming
// scores match what the batch pass will compute.
func seed(t *testing.T, log *memLog, engine *quality.Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		c := claimtest.WithID(fmt.Sprintf("CLM%03d", i+1), fmt.Sprintf("PAT%03d", i+1))
		log.validated = append(log.validated, *c)
		log.processed = append(log.processed, claims.ProcessedEvent{Claim: *c})
		log.streaming[c.ClaimID] = engine.Score(c, claims.PassStreaming, refdata.DefaultSnapshot("test-v1"))
	}
}

func seededEngine(t *testing.T) *quality.Engine {
	t.Helper()
	engine, err := quality.NewEngine(config.ScoringConfig{
		CompletenessWeight: 0.30,
		ConsistencyWeight:  0.40,
		BusinessWeight:     0.30,
	})
	require.NoError(t, err)
	return engine
}

func TestRunCleanDay(t *testing.T) {
	log := newMemLog()
	seed(t, log, seededEngine(t), 10)
	runner := newRunner(t, log, testReconcileConfig())

	report, err := runner.Run(context.Background(), testDay)
	require.NoError(t, err)

	assert.Equal(t, 10, report.ValidatedCount)
	assert.Equal(t, 10, report.ProcessedCount)
	assert.Empty(t, report.Discrepancies)
	assert.False(t, report.Incomplete)
	assert.Equal(t, "test-v1", report.RefDataVersion)
	assert.NotEmpty(t, report.ReportID)

	// Every claim was rescored under the batch pass.
	assert.Len(t, log.batch, 10)
	for _, m := range log.batch {
		assert.Equal(t, claims.PassBatch, m.PassKind)
	}
	assert.Contains(t, log.reports, report.ReportID)
}

func TestRunDetectsStreamingDrift(t *testing.T) {
	// 5 validated, 3 processed: a summary finding plus one per missing
	// claim id, ordered by claim id.
	log := newMemLog()
	seed(t, log, seededEngine(t), 5)
	log.processed = log.processed[:3]
	delete(log.streaming, "CLM004")
	delete(log.streaming, "CLM005")
	runner := newRunner(t, log, testReconcileConfig())

	report, err := runner.Run(context.Background(), testDay)
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 3)
	assert.Equal(t, KindStreamingDrift, report.Discrepancies[0].Kind)
	assert.Empty(t, report.Discrepancies[0].ClaimID)
	assert.Equal(t, "CLM004", report.Discrepancies[1].ClaimID)
	assert.Equal(t, "CLM005", report.Discrepancies[2].ClaimID)
}

func TestRunDetectsScoreDivergence(t *testing.T) {
	log := newMemLog()
	seed(t, log, seededEngine(t), 3)

	// Doctor one streaming score beyond the tolerance.
	diverged := log.streaming["CLM002"]
	diverged.OverallScore -= 5.0
	log.streaming["CLM002"] = diverged

	runner := newRunner(t, log, testReconcileConfig())
	report, err := runner.Run(context.Background(), testDay)
	require.NoError(t, err)

	require.Len(t, report.Discrepancies, 1)
	d := report.Discrepancies[0]
	assert.Equal(t, KindScoreDivergence, d.Kind)
	assert.Equal(t, "CLM002", d.ClaimID)
	assert.InDelta(t, 5.0, d.BatchScore-d.StreamingScore, 0.01)
}

func TestRunToleratesSmallScoreDifference(t *testing.T) {
	log := newMemLog()
	seed(t, log, seededEngine(t), 3)

	nudged := log.streaming["CLM002"]
	nudged.OverallScore -= 0.9
	log.streaming["CLM002"] = nudged

	runner := newRunner(t, log, testReconcileConfig())
	report, err := runner.Run(context.Background(), testDay)
	require.NoError(t, err)
	assert.Empty(t, report.Discrepancies)
}

// deadlineLog is a memLog whose reads honor context cancellation, like a
// real database driver would.
type deadlineLog struct {
	*memLog
}

func (s deadlineLog) ValidatedClaims(ctx context.Context, day string) ([]claims.Claim, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.memLog.ValidatedClaims(ctx, day)
}

func (s deadlineLog) ProcessedClaims(ctx context.Context, day string) ([]claims.ProcessedEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.memLog.ProcessedClaims(ctx, day)
}

func (s deadlineLog) QualityByPass(ctx context.Context, day string, pass claims.PassKind) (map[string]claims.QualityMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.memLog.QualityByPass(ctx, day, pass)
}

func TestRunDeadlineDuringLoadStillSavesReport(t *testing.T) {
	log := newMemLog()
	seed(t, log, seededEngine(t), 10)

	cfg := testReconcileConfig()
	cfg.Deadline = time.Nanosecond
	runner := newRunner(t, deadlineLog{log}, cfg)

	report, err := runner.Run(context.Background(), testDay)
	require.NoError(t, err)
	assert.True(t, report.Incomplete)
	assert.Zero(t, report.ValidatedCount)
	assert.Contains(t, log.reports, report.ReportID)
}

func TestRunDeadlineMarksReportIncomplete(t *testing.T) {
	log := newMemLog()
	seed(t, log, seededEngine(t), 50)

	cfg := testReconcileConfig()
	cfg.Deadline = time.Nanosecond
	runner := newRunner(t, log, cfg)

	report, err := runner.Run(context.Background(), testDay)
	require.NoError(t, err)
	assert.True(t, report.Incomplete)
	// The partial report is still saved.
	assert.Contains(t, log.reports, report.ReportID)
}
