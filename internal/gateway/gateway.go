// Package gateway implements claim intake: structural validation, the
// coverage business rule, idempotent deduplication by claim id, and
// publication to the validated or rejected channel. Every submission gets a
// receipt and an audit record; rejections are never dropped silently.
package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/claims/validate"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	apperrors "github.com/akshay033333/medical-claims-pipeline/pkg/errors"
	"github.com/akshay033333/medical-claims-pipeline/pkg/kafka"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
)

// Producer publishes one event to a claims channel. Satisfied by
// kafka.Producer; tests supply in-memory fakes.
type Producer interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Deduper remembers claim ids with at-least-once semantics: the first
// Remember for an id returns true, replays return false. Forget releases an
// id so a retry is admitted as fresh. The receipt cache lets a replayed
// submission answer without a round trip to the claim log; CachedReceipt
// returns nil on a miss.
type Deduper interface {
	Remember(ctx context.Context, claimID string) (bool, error)
	Forget(ctx context.Context, claimID string) error
	CacheReceipt(ctx context.Context, receipt *claims.SubmissionReceipt) error
	CachedReceipt(ctx context.Context, claimID string) (*claims.SubmissionReceipt, error)
}

// SubmissionStore is the slice of the claim log the gateway needs.
type SubmissionStore interface {
	RecordSubmission(ctx context.Context, c *claims.Claim, receipt *claims.SubmissionReceipt) error
	Receipt(ctx context.Context, claimID string) (*claims.SubmissionReceipt, error)
}

// Clock lets tests pin the received timestamp.
type Clock func() time.Time

// Gateway coordinates claim admission.
type Gateway struct {
	cfg       config.GatewayConfig
	raw       Producer
	validated Producer
	rejected  Producer
	dedup     Deduper
	store     SubmissionStore
	limiter   *ratelimitAdapter
	inflight  chan struct{}
	metrics   *metrics.Metrics
	now       Clock
	logger    *slog.Logger
}

// ratelimitAdapter narrows the limiter to what Submit needs, so tests can
// replace it.
type ratelimitAdapter struct {
	allow func(source string) bool
}

// Option customises a Gateway.
type Option func(*Gateway)

// WithClock overrides the received-date clock.
func WithClock(clock Clock) Option {
	return func(g *Gateway) { g.now = clock }
}

// WithRateLimiter overrides the per-source admission check.
func WithRateLimiter(allow func(source string) bool) Option {
	return func(g *Gateway) { g.limiter = &ratelimitAdapter{allow: allow} }
}

// New creates a Gateway. The high-water mark bounds in-flight submissions;
// when it is reached Submit blocks the caller, which is the backpressure
// contract.
func New(cfg config.GatewayConfig, raw, validated, rejected Producer, dedup Deduper, store SubmissionStore, m *metrics.Metrics, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:       cfg,
		raw:       raw,
		validated: validated,
		rejected:  rejected,
		dedup:     dedup,
		store:     store,
		inflight:  make(chan struct{}, cfg.HighWaterMark),
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.WithComponent("gateway"),
	}
	g.limiter = &ratelimitAdapter{allow: func(string) bool { return true }}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit admits one raw claim into the pipeline and returns its receipt.
// Duplicate claim ids are deduplicated idempotently: the original receipt is
// replayed and nothing is reprocessed or republished.
func (g *Gateway) Submit(ctx context.Context, c *claims.Claim, source string) (*claims.SubmissionReceipt, error) {
	start := time.Now()
	defer func() {
		g.metrics.SubmissionDuration.Observe(time.Since(start).Seconds())
	}()

	select {
	case g.inflight <- struct{}{}:
		defer func() { <-g.inflight }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if source == "" {
		source = c.SourceSystem
	}
	if !g.limiter.allow(source) {
		g.metrics.RateLimitedTotal.WithLabelValues(source).Inc()
		return nil, apperrors.Newf(apperrors.ErrRateLimited, http.StatusTooManyRequests,
			"source system %s exceeded its submission rate", source)
	}

	ctx = logger.WithClaimID(ctx, c.ClaimID)
	log := logger.FromContext(ctx)

	c.SourceSystem = source
	c.Status = claims.StatusSubmitted
	if !c.ClaimReceivedDate.IsSet() {
		c.ClaimReceivedDate = claims.DateOf(g.now())
	}

	// Audit copy of the raw submission, keyed by claim id. Best effort:
	// the receipt does not depend on it.
	if err := g.raw.Publish(ctx, kafka.Event{Key: c.ClaimID, Value: c}); err != nil {
		log.Warn("failed to publish raw claim", "error", err)
	}

	if c.ClaimID != "" {
		fresh, err := g.dedup.Remember(ctx, c.ClaimID)
		if err != nil {
			return nil, apperrors.Newf(apperrors.ErrInternal, http.StatusInternalServerError,
				"dedup check failed: %v", err)
		}
		if !fresh {
			g.metrics.DuplicateClaimsTotal.Inc()
			log.Info("duplicate submission deduplicated")
			if cached, err := g.dedup.CachedReceipt(ctx, c.ClaimID); err == nil && cached != nil {
				return cached, nil
			}
			if prior, err := g.store.Receipt(ctx, c.ClaimID); err == nil && prior != nil {
				return prior, nil
			}
			// Dedup key exists but neither the cache nor the log has the
			// receipt (crash between the writes). Fall through and process
			// normally.
		}
	}

	receipt := g.decide(c)
	if err := g.store.RecordSubmission(ctx, c, receipt); err != nil {
		log.Error("failed to record submission", "error", err)
		// Release the dedup key so the submitter's retry is admitted fresh
		// instead of replaying a receipt that was never recorded.
		if c.ClaimID != "" {
			if ferr := g.dedup.Forget(ctx, c.ClaimID); ferr != nil {
				log.Warn("failed to release dedup key", "error", ferr)
			}
		}
		return nil, apperrors.Newf(apperrors.ErrStoreUnavailable, http.StatusServiceUnavailable,
			"recording submission: %v", err)
	}
	if c.ClaimID != "" {
		if err := g.dedup.CacheReceipt(ctx, receipt); err != nil {
			log.Warn("failed to cache receipt", "error", err)
		}
	}
	g.publish(ctx, c, receipt)
	return receipt, nil
}

// Receipt returns the recorded receipt for an earlier submission.
func (g *Gateway) Receipt(ctx context.Context, claimID string) (*claims.SubmissionReceipt, error) {
	receipt, err := g.store.Receipt(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, apperrors.New(apperrors.ErrClaimNotFound, http.StatusNotFound, claimID)
	}
	return receipt, nil
}

// decide runs structural validation plus the coverage business rule and
// assigns the claim's status.
func (g *Gateway) decide(c *claims.Claim) *claims.SubmissionReceipt {
	errs := validate.Claim(c)
	if coverageInactive(c) {
		errs = append(errs, claims.FieldError{
			Field:  "insurance.coverage_start_date",
			Code:   claims.CodeCoverageNotActive,
			Detail: "coverage must start on or before the date of service",
		})
	}

	if len(errs) == 0 {
		c.Status = claims.StatusValidated
	} else {
		c.Status = claims.StatusRejected
	}
	return &claims.SubmissionReceipt{
		ClaimID: c.ClaimID,
		Status:  c.Status,
		Errors:  errs,
	}
}

// publish routes the decided claim to its channel. Validated claims are
// keyed by patient id so all claims for one patient share a partition and
// keep their relative order through the processor.
func (g *Gateway) publish(ctx context.Context, c *claims.Claim, receipt *claims.SubmissionReceipt) {
	log := logger.FromContext(ctx)
	if receipt.Status == claims.StatusValidated {
		g.metrics.ClaimsValidatedTotal.Inc()
		event := kafka.Event{Key: c.Patient.PatientID, Value: c}
		if err := g.validated.Publish(ctx, event); err != nil {
			// The claim is in the log; the daily reconciliation pass will
			// surface it as streaming drift.
			log.Error("failed to publish validated claim", "error", err)
			return
		}
		log.Info("claim validated", "patient_id", c.Patient.PatientID)
		return
	}

	g.metrics.ClaimsRejectedTotal.WithLabelValues(receipt.Errors[0].Code).Inc()
	event := kafka.Event{Key: c.ClaimID, Value: claims.RejectedEvent{
		Claim:      *c,
		Errors:     receipt.Errors,
		RejectedAt: g.now(),
	}}
	if err := g.rejected.Publish(ctx, event); err != nil {
		log.Error("failed to publish rejected claim", "error", err)
	}
	log.Info("claim rejected", "errors", len(receipt.Errors), "first_code", receipt.Errors[0].Code)
}

// coverageInactive applies the gateway's business rule: coverage must have
// started by the date of service. Missing or invalid dates are left to the
// structural checks.
func coverageInactive(c *claims.Claim) bool {
	if !c.Insurance.CoverageStartDate.Valid() || !c.DateOfService.Valid() {
		return false
	}
	return c.DateOfService.Before(c.Insurance.CoverageStartDate)
}
