// Package processor implements the streaming enrichment stage: it consumes
// validated claims, partitions them by patient id, batches each partition
// into short processing windows, and emits enriched, fraud-checked, scored
// claim events. One goroutine owns each partition, so all per-patient fraud
// state is single-writer and claims for a patient retain their order.
package processor

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/quality"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/kafka"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
)

// workerQueueDepth bounds each partition's input channel. A full channel
// blocks the consumer loop, which stalls offset commits and backpressures
// the brokers instead of buffering unboundedly.
const workerQueueDepth = 256

// Producer publishes events to a claims channel. The processed and quality
// channels take one batch per closed window; alerts go out per claim.
type Producer interface {
	Topic() string
	Publish(ctx context.Context, event kafka.Event) error
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// EventStore is the slice of the claim log the processor writes.
type EventStore interface {
	RecordProcessed(ctx context.Context, event *claims.ProcessedEvent) error
	RecordQuality(ctx context.Context, day string, m *claims.QualityMetrics) error
}

// Processor consumes validated claims and runs the enrichment pipeline.
type Processor struct {
	cfg      config.ProcessorConfig
	enricher *Enricher
	engine   *quality.Engine
	lookup   refdata.Lookup
	store    EventStore
	emitted  Producer
	alerts   Producer
	quality  Producer
	metrics  *metrics.Metrics
	workers  []*worker
	now      func() time.Time
	logger   *slog.Logger
}

// New creates a Processor with one worker per configured partition.
func New(
	cfg config.ProcessorConfig,
	lookup refdata.Lookup,
	engine *quality.Engine,
	store EventStore,
	processed, alerts, qualityTopic Producer,
	m *metrics.Metrics,
) *Processor {
	p := &Processor{
		cfg:      cfg,
		enricher: NewEnricher(lookup, cfg, m),
		engine:   engine,
		lookup:   lookup,
		store:    store,
		emitted:  processed,
		alerts:   alerts,
		quality:  qualityTopic,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.WithComponent("processor"),
	}
	p.workers = make([]*worker, cfg.Partitions)
	for i := range p.workers {
		p.workers[i] = &worker{
			id:       i,
			proc:     p,
			detector: NewDetector(cfg),
			input:    make(chan *claims.Claim, workerQueueDepth),
		}
	}
	return p
}

// Handler returns the Kafka message handler that routes validated claims to
// their partition worker. Routing hashes the patient id, so the mapping from
// patient to worker is stable for the process lifetime.
func (p *Processor) Handler() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		c, err := kafka.DecodeJSON[claims.Claim](value)
		if err != nil {
			// A malformed message can never succeed; log and commit past it.
			p.logger.Error("failed to decode validated claim", "error", err)
			return nil
		}
		w := p.workers[partitionFor(c.Patient.PatientID, len(p.workers))]
		select {
		case w.input <- &c:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run drives all partition workers until ctx is cancelled, then drains what
// remains within the configured max window wait.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor starting",
		"partitions", p.cfg.Partitions,
		"window_length", p.cfg.WindowLength,
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error { return w.run(ctx) })
	}
	return g.Wait()
}

func partitionFor(patientID string, partitions int) int {
	h := fnv.New32a()
	h.Write([]byte(patientID))
	return int(h.Sum32()) % partitions
}

// pending is one claim waiting in a window, with its enrichment attempt
// count.
type pending struct {
	claim    *claims.Claim
	attempts int
}

// worker owns one partition: its window buffer, its retry list, and its
// fraud-detector state.
type worker struct {
	id        int
	proc      *Processor
	detector  *Detector
	input     chan *claims.Claim
	window    []pending
	retry     []pending
	windowSeq int64
}

func (w *worker) run(ctx context.Context) error {
	ticker := time.NewTicker(w.proc.cfg.WindowLength)
	defer ticker.Stop()
	depth := w.proc.metrics.PartitionDepth.WithLabelValues(strconv.Itoa(w.id))

	for {
		select {
		case c := <-w.input:
			w.window = append(w.window, pending{claim: c})
			depth.Set(float64(len(w.window) + len(w.retry)))
		case <-ticker.C:
			w.flush(ctx, false)
			depth.Set(float64(len(w.retry)))
		case <-ctx.Done():
			w.drain()
			// The consume loop has stopped; finish the tail on a fresh
			// context bounded by the max window wait.
			drainCtx, cancel := context.WithTimeout(context.Background(), w.proc.cfg.MaxWindowWait)
			w.flush(drainCtx, true)
			cancel()
			depth.Set(0)
			return nil
		}
	}
}

// drain moves everything still queued on the input channel into the window
// buffer without blocking.
func (w *worker) drain() {
	for {
		select {
		case c := <-w.input:
			w.window = append(w.window, pending{claim: c})
		default:
			return
		}
	}
}

// flush closes the current window: enrichment retries from the previous
// window go first, then this window's claims in arrival order. A claim whose
// lookups fail on its first attempt is pushed to the next window; on its
// second attempt it is forwarded with lookup_incomplete set. During the
// final flush there is no next window, so first-attempt failures are
// forwarded incomplete as well.
func (w *worker) flush(ctx context.Context, final bool) {
	batch := make([]pending, 0, len(w.retry)+len(w.window))
	batch = append(batch, w.retry...)
	batch = append(batch, w.window...)
	w.retry = nil
	w.window = nil
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	w.windowSeq++

	var processedEvents, qualityEvents []kafka.Event
	for _, p := range batch {
		enrichment, complete := w.proc.enricher.Enrich(ctx, p.claim)
		if !complete && p.attempts == 0 && !final {
			p.attempts++
			w.retry = append(w.retry, p)
			w.proc.metrics.LookupRetries.Inc()
			continue
		}
		enrichment.LookupIncomplete = !complete
		event, qm := w.emit(ctx, p.claim, enrichment)
		processedEvents = append(processedEvents, kafka.Event{Key: event.Claim.Patient.PatientID, Value: event})
		qualityEvents = append(qualityEvents, kafka.Event{Key: qm.ClaimID, Value: qm})
	}
	w.publishWindow(ctx, processedEvents, qualityEvents)

	w.proc.metrics.WindowDuration.Observe(time.Since(start).Seconds())
	w.proc.metrics.WindowSize.Observe(float64(len(batch)))
}

// publishWindow writes the window's processed and quality events as one
// batch per topic. Batch order follows arrival order, so per-patient
// ordering survives the batching. Publish failures are logged, not retried:
// the daily reconciliation pass detects and reports the resulting drift.
func (w *worker) publishWindow(ctx context.Context, processedEvents, qualityEvents []kafka.Event) {
	if len(processedEvents) == 0 {
		return
	}
	proc := w.proc
	if err := proc.emitted.PublishBatch(ctx, processedEvents); err != nil {
		proc.logger.Error("failed to publish processed window",
			"topic", proc.emitted.Topic(),
			"partition", w.id,
			"count", len(processedEvents),
			"error", err,
		)
	}
	if err := proc.quality.PublishBatch(ctx, qualityEvents); err != nil {
		proc.logger.Error("failed to publish quality window",
			"topic", proc.quality.Topic(),
			"partition", w.id,
			"count", len(qualityEvents),
			"error", err,
		)
	}
}

// emit runs fraud detection and quality scoring for one claim, records it in
// the claim log, and publishes its alert if anomalous. The processed and
// quality events are returned for the window batch. Store failures are
// logged, not retried: the daily reconciliation pass detects and reports the
// resulting drift.
func (w *worker) emit(ctx context.Context, c *claims.Claim, enrichment claims.Enrichment) (*claims.ProcessedEvent, claims.QualityMetrics) {
	proc := w.proc
	anomalies := w.detector.Detect(c)
	for _, code := range anomalies {
		proc.metrics.AnomaliesTotal.WithLabelValues(string(code)).Inc()
	}

	qm := proc.engine.Score(c, claims.PassStreaming, proc.lookup.Snapshot())
	for _, code := range anomalies {
		qm.AnomaliesDetected = append(qm.AnomaliesDetected, string(code))
	}

	c.Status = claims.StatusProcessed
	event := &claims.ProcessedEvent{
		Claim:       *c,
		Enrichment:  enrichment,
		Anomalies:   anomalies,
		Quality:     qm,
		Partition:   w.id,
		Window:      w.windowSeq,
		ProcessedAt: proc.now(),
	}

	log := proc.logger.With("claim_id", c.ClaimID, "partition", w.id)
	if err := proc.store.RecordProcessed(ctx, event); err != nil {
		log.Error("failed to record processed event", "error", err)
	}
	if err := proc.store.RecordQuality(ctx, c.ProcessingDay(), &qm); err != nil {
		log.Error("failed to record quality metrics", "error", err)
	}
	proc.metrics.ClaimsProcessedTotal.Inc()
	proc.metrics.QualityScore.WithLabelValues(string(claims.PassStreaming)).Observe(qm.OverallScore)

	if len(anomalies) > 0 {
		severity := claims.SeverityFor(anomalies)
		alert := claims.AlertEvent{
			AlertID:   uuid.NewString(),
			ClaimID:   c.ClaimID,
			Anomalies: anomalies,
			Severity:  severity,
			CreatedAt: proc.now(),
		}
		if err := proc.alerts.Publish(ctx, kafka.Event{Key: c.ClaimID, Value: alert}); err != nil {
			log.Error("failed to publish alert", "alert_id", alert.AlertID, "error", err)
		}
		proc.metrics.AlertsTotal.WithLabelValues(string(severity)).Inc()
		log.Warn("fraud anomalies detected",
			"alert_id", alert.AlertID,
			"anomalies", fmt.Sprint(anomalies),
			"severity", severity,
		)
	}
	return event, qm
}
