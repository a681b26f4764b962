package processor

import (
	"context"
	"encoding/json"
	"errors"
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
	"github.com/akshay033333/medical-claims-pipeline/pkg/kafka"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
)

// fakeLookup is an in-memory refdata.Lookup whose failure mode tests can
// flip at runtime.
type fakeLookup struct {
	mu      sync.Mutex
	failing bool
}

func (f *fakeLookup) Provider(ctx context.Context, id string) (*refdata.ProviderInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("reference service down")
	}
	return &refdata.ProviderInfo{ProviderID: id, Name: "Springfield Family Practice", Specialty: "family medicine"}, nil
}

func (f *fakeLookup) Payer(ctx context.Context, id string) (*refdata.PayerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errors.New("reference service down")
	}
	return &refdata.PayerInfo{PayerID: id, Name: "Acme Health", PlanCategory: "commercial"}, nil
}

func (f *fakeLookup) Snapshot() refdata.Snapshot {
	return refdata.DefaultSnapshot("test-v1")
}

func (f *fakeLookup) setFailing(failing bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = failing
}

// memProducer records published events and how many batch writes delivered
// them.
type memProducer struct {
	topic   string
	mu      sync.Mutex
	events  []kafka.Event
	batches int
}

func (p *memProducer) Topic() string { return p.topic }

func (p *memProducer) Publish(ctx context.Context, event kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *memProducer) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches++
	p.events = append(p.events, events...)
	return nil
}

func (p *memProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *memProducer) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.batches
}

func (p *memProducer) processedEvents(t *testing.T) []claims.ProcessedEvent {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]claims.ProcessedEvent, 0, len(p.events))
	for _, e := range p.events {
		data, err := json.Marshal(e.Value)
		require.NoError(t, err)
		var event claims.ProcessedEvent
		require.NoError(t, json.Unmarshal(data, &event))
		out = append(out, event)
	}
	return out
}

// memEventStore records processed events and quality passes.
type memEventStore struct {
	mu        sync.Mutex
	processed []claims.ProcessedEvent
	quality   []claims.QualityMetrics
}

func (s *memEventStore) RecordProcessed(ctx context.Context, event *claims.ProcessedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, *event)
	return nil
}

func (s *memEventStore) RecordQuality(ctx context.Context, day string, m *claims.QualityMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quality = append(s.quality, *m)
	return nil
}

type procHarness struct {
	proc      *Processor
	lookup    *fakeLookup
	store     *memEventStore
	processed *memProducer
	alerts    *memProducer
	quality   *memProducer
	cancel    context.CancelFunc
	done      chan struct{}
}

func startProcessor(t *testing.T, cfg config.ProcessorConfig) *procHarness {
	t.Helper()
	engine, err := quality.NewEngine(config.ScoringConfig{
		CompletenessWeight: 0.30,
		ConsistencyWeight:  0.40,
		BusinessWeight:     0.30,
	})
	require.NoError(t, err)

	h := &procHarness{
		lookup:    &fakeLookup{},
		store:     &memEventStore{},
		processed: &memProducer{topic: "claims.processed"},
		alerts:    &memProducer{topic: "claims.alerts"},
		quality:   &memProducer{topic: "claims.quality"},
		done:      make(chan struct{}),
	}
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	h.proc = New(cfg, h.lookup, engine, h.store, h.processed, h.alerts, h.quality, m)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.done)
		_ = h.proc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	return h
}

func (h *procHarness) submit(t *testing.T, c *claims.Claim) {
	t.Helper()
	value, err := json.Marshal(c)
	require.NoError(t, err)
	require.NoError(t, h.proc.Handler()(context.Background(), []byte(c.Patient.PatientID), value))
}

func testProcessorConfig() config.ProcessorConfig {
	return config.ProcessorConfig{
		WindowLength:        30 * time.Millisecond,
		MaxWindowWait:       time.Second,
		Partitions:          2,
		LookupTimeout:       100 * time.Millisecond,
		AmountOutlierFactor: 3.0,
		MedianWindow:        30 * 24 * time.Hour,
		MinMedianSamples:    5,
		FrequencyLimit:      5,
		FrequencyWindow:     24 * time.Hour,
	}
}

func TestProcessorEnrichesAndScores(t *testing.T) {
	h := startProcessor(t, testProcessorConfig())
	h.submit(t, claimtest.Sample())

	require.Eventually(t, func() bool { return h.processed.count() == 1 },
		2*time.Second, 10*time.Millisecond)

	events := h.processed.processedEvents(t)
	event := events[0]
	assert.Equal(t, "CLM001", event.Claim.ClaimID)
	assert.Equal(t, claims.StatusProcessed, event.Claim.Status)
	assert.Equal(t, "Springfield Family Practice", event.Enrichment.ProviderName)
	assert.Equal(t, "Acme Health", event.Enrichment.PayerName)
	assert.False(t, event.Enrichment.LookupIncomplete)
	assert.Equal(t, "test-v1", event.Enrichment.RefDataVersion)
	assert.Equal(t, 95.7, event.Quality.OverallScore)
	assert.Empty(t, event.Anomalies)

	assert.Equal(t, 0, h.alerts.count())
	assert.Equal(t, 1, h.quality.count())

	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	require.Len(t, h.store.processed, 1)
	require.Len(t, h.store.quality, 1)
	assert.Equal(t, claims.PassStreaming, h.store.quality[0].PassKind)
}

func TestProcessorRetriesLookupThenForwardsIncomplete(t *testing.T) {
	h := startProcessor(t, testProcessorConfig())
	h.lookup.setFailing(true)
	h.submit(t, claimtest.Sample())

	// First window pushes the claim to the retry list; the second forwards
	// it with lookup_incomplete set.
	require.Eventually(t, func() bool { return h.processed.count() == 1 },
		2*time.Second, 10*time.Millisecond)

	event := h.processed.processedEvents(t)[0]
	assert.True(t, event.Enrichment.LookupIncomplete)
	assert.Empty(t, event.Enrichment.ProviderName)
	// The claim still got scored and recorded.
	assert.Greater(t, event.Quality.OverallScore, 0.0)
}

func TestProcessorRecoversOnRetry(t *testing.T) {
	h := startProcessor(t, testProcessorConfig())
	h.lookup.setFailing(true)
	h.submit(t, claimtest.Sample())

	// Let the first window fail, then restore the lookup before the retry.
	time.Sleep(40 * time.Millisecond)
	h.lookup.setFailing(false)

	require.Eventually(t, func() bool { return h.processed.count() == 1 },
		2*time.Second, 10*time.Millisecond)
	event := h.processed.processedEvents(t)[0]
	assert.False(t, event.Enrichment.LookupIncomplete)
	assert.Equal(t, "Springfield Family Practice", event.Enrichment.ProviderName)
}

func TestProcessorEmitsAlertForAnomalousClaim(t *testing.T) {
	h := startProcessor(t, testProcessorConfig())
	c := claimtest.Sample()
	c.DateOfService = claims.DateOf(c.ClaimReceivedDate.Time().AddDate(0, 0, 3))
	c.ClaimLines[0].ServiceDate = c.DateOfService
	h.submit(t, c)

	require.Eventually(t, func() bool { return h.alerts.count() == 1 },
		2*time.Second, 10*time.Millisecond)

	event := h.processed.processedEvents(t)[0]
	assert.Equal(t, []claims.AnomalyCode{claims.AnomalyDate}, event.Anomalies)
	assert.Contains(t, event.Quality.AnomaliesDetected, string(claims.AnomalyDate))
}

func TestProcessorPreservesPerPatientOrder(t *testing.T) {
	h := startProcessor(t, testProcessorConfig())
	for i := 0; i < 20; i++ {
		c := claimtest.WithID(claimID(i), "PAT001")
		h.submit(t, c)
	}

	require.Eventually(t, func() bool { return h.processed.count() == 20 },
		3*time.Second, 10*time.Millisecond)

	events := h.processed.processedEvents(t)
	for i, event := range events {
		assert.Equal(t, claimID(i), event.Claim.ClaimID)
	}
}

func TestProcessorPublishesWindowAsOneBatch(t *testing.T) {
	cfg := testProcessorConfig()
	cfg.WindowLength = 200 * time.Millisecond
	h := startProcessor(t, cfg)
	for i := 0; i < 3; i++ {
		h.submit(t, claimtest.WithID(claimID(i), "PAT001"))
	}

	require.Eventually(t, func() bool { return h.processed.count() == 3 },
		2*time.Second, 10*time.Millisecond)

	// All three claims closed in the same window, so each topic saw exactly
	// one write.
	assert.Equal(t, 1, h.processed.batchCount())
	assert.Equal(t, 1, h.quality.batchCount())
	assert.Equal(t, 3, h.quality.count())
}

func TestProcessorDrainsOnShutdown(t *testing.T) {
	cfg := testProcessorConfig()
	cfg.WindowLength = 10 * time.Second // no ticker flush before shutdown
	h := startProcessor(t, cfg)
	for i := 0; i < 5; i++ {
		h.submit(t, claimtest.WithID(claimID(i), "PAT001"))
	}

	h.cancel()
	select {
	case <-h.done:
	case <-time.After(3 * time.Second):
		t.Fatal("processor did not shut down")
	}
	assert.Equal(t, 5, h.processed.count())
}

func TestPartitionForIsStable(t *testing.T) {
	p := partitionFor("PAT001", 8)
	for i := 0; i < 100; i++ {
		assert.Equal(t, p, partitionFor("PAT001", 8))
	}
	assert.GreaterOrEqual(t, p, 0)
	assert.Less(t, p, 8)
}

func claimID(i int) string {
	return "CLM" + string(rune('A'+i/10)) + string(rune('0'+i%10))
}
