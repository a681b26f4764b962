// Package store persists the pipeline's claim log in PostgreSQL. The log is
// the durable record the batch reconciliation processor re-reads: every
// gateway decision, every processed event, and every quality pass lands
// here, keyed by processing day. Streaming records are insert-only; the
// batch pass writes its own rows and never mutates them.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/postgres"
)

// Store is the claim-log interface the gateway, processor, and reconciler
// share. Implementations must be safe for concurrent use.
type Store interface {
	RecordSubmission(ctx context.Context, c *claims.Claim, receipt *claims.SubmissionReceipt) error
	Receipt(ctx context.Context, claimID string) (*claims.SubmissionReceipt, error)
	RecordProcessed(ctx context.Context, event *claims.ProcessedEvent) error
	RecordQuality(ctx context.Context, day string, m *claims.QualityMetrics) error
	ValidatedClaims(ctx context.Context, day string) ([]claims.Claim, error)
	ProcessedClaims(ctx context.Context, day string) ([]claims.ProcessedEvent, error)
	QualityByPass(ctx context.Context, day string, pass claims.PassKind) (map[string]claims.QualityMetrics, error)
	SaveReport(ctx context.Context, reportID, day string, report any) error
}

// Postgres implements Store on the shared postgres client.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

// New creates the store and applies the schema migration.
func New(ctx context.Context, db *postgres.Client) (*Postgres, error) {
	s := &Postgres{
		db:     db,
		logger: logger.WithComponent("claim-store"),
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrating claim log schema: %w", err)
	}
	return s, nil
}

func (s *Postgres) migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS claim_log (
			claim_id     TEXT PRIMARY KEY,
			day          TEXT NOT NULL,
			status       TEXT NOT NULL,
			payload      JSONB NOT NULL,
			errors       JSONB,
			received_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS claim_log_day_idx ON claim_log (day, status)`,
		`CREATE TABLE IF NOT EXISTS processed_log (
			claim_id     TEXT PRIMARY KEY,
			day          TEXT NOT NULL,
			payload      JSONB NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS processed_log_day_idx ON processed_log (day)`,
		`CREATE TABLE IF NOT EXISTS quality_metrics (
			claim_id    TEXT NOT NULL,
			pass_kind   TEXT NOT NULL,
			day         TEXT NOT NULL,
			payload     JSONB NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (claim_id, pass_kind)
		)`,
		`CREATE INDEX IF NOT EXISTS quality_metrics_day_idx ON quality_metrics (day, pass_kind)`,
		`CREATE TABLE IF NOT EXISTS reconciliation_reports (
			report_id  TEXT PRIMARY KEY,
			day        TEXT NOT NULL,
			payload    JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("executing migration: %w", err)
			}
		}
		return nil
	})
}

// RecordSubmission stores the gateway's decision for a claim. The insert is
// idempotent on claim_id so a replayed submission cannot overwrite the
// original audit record.
func (s *Postgres) RecordSubmission(ctx context.Context, c *claims.Claim, receipt *claims.SubmissionReceipt) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling claim %s: %w", c.ClaimID, err)
	}
	var errsJSON []byte
	if len(receipt.Errors) > 0 {
		errsJSON, err = json.Marshal(receipt.Errors)
		if err != nil {
			return fmt.Errorf("marshaling errors for claim %s: %w", c.ClaimID, err)
		}
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO claim_log (claim_id, day, status, payload, errors)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (claim_id) DO NOTHING`,
		c.ClaimID, c.ProcessingDay(), string(receipt.Status), payload, nullableBytes(errsJSON))
	if err != nil {
		return fmt.Errorf("recording submission %s: %w", c.ClaimID, err)
	}
	return nil
}

// Receipt rebuilds the original submission receipt for a claim id, used to
// replay responses for deduplicated resubmissions.
func (s *Postgres) Receipt(ctx context.Context, claimID string) (*claims.SubmissionReceipt, error) {
	var status string
	var errsJSON []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT status, errors FROM claim_log WHERE claim_id = $1`, claimID).
		Scan(&status, &errsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying receipt for %s: %w", claimID, err)
	}
	receipt := &claims.SubmissionReceipt{
		ClaimID: claimID,
		Status:  claims.ClaimStatus(status),
	}
	if len(errsJSON) > 0 {
		if err := json.Unmarshal(errsJSON, &receipt.Errors); err != nil {
			return nil, fmt.Errorf("decoding errors for %s: %w", claimID, err)
		}
	}
	return receipt, nil
}

// RecordProcessed stores one streaming-processor output event.
func (s *Postgres) RecordProcessed(ctx context.Context, event *claims.ProcessedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling processed event %s: %w", event.Claim.ClaimID, err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO processed_log (claim_id, day, payload)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (claim_id) DO NOTHING`,
		event.Claim.ClaimID, event.Claim.ProcessingDay(), payload)
	if err != nil {
		return fmt.Errorf("recording processed event %s: %w", event.Claim.ClaimID, err)
	}
	return nil
}

// RecordQuality stores one scoring pass. A later pass with the same
// (claim_id, pass_kind) supersedes the previous record.
func (s *Postgres) RecordQuality(ctx context.Context, day string, m *claims.QualityMetrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling quality metrics %s: %w", m.ClaimID, err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO quality_metrics (claim_id, pass_kind, day, payload, computed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (claim_id, pass_kind) DO UPDATE
		 SET day = EXCLUDED.day, payload = EXCLUDED.payload, computed_at = EXCLUDED.computed_at`,
		m.ClaimID, string(m.PassKind), day, payload, m.ComputedAt)
	if err != nil {
		return fmt.Errorf("recording quality metrics %s/%s: %w", m.ClaimID, m.PassKind, err)
	}
	return nil
}

// ValidatedClaims returns every claim the gateway accepted on the given day.
func (s *Postgres) ValidatedClaims(ctx context.Context, day string) ([]claims.Claim, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT payload FROM claim_log WHERE day = $1 AND status = $2 ORDER BY claim_id`,
		day, string(claims.StatusValidated))
	if err != nil {
		return nil, fmt.Errorf("querying validated claims for %s: %w", day, err)
	}
	defer rows.Close()

	var result []claims.Claim
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning validated claim: %w", err)
		}
		var c claims.Claim
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decoding validated claim: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ProcessedClaims returns every streaming-processor event for the given day.
func (s *Postgres) ProcessedClaims(ctx context.Context, day string) ([]claims.ProcessedEvent, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT payload FROM processed_log WHERE day = $1 ORDER BY claim_id`, day)
	if err != nil {
		return nil, fmt.Errorf("querying processed claims for %s: %w", day, err)
	}
	defer rows.Close()

	var result []claims.ProcessedEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning processed event: %w", err)
		}
		var event claims.ProcessedEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return nil, fmt.Errorf("decoding processed event: %w", err)
		}
		result = append(result, event)
	}
	return result, rows.Err()
}

// QualityByPass returns the quality metrics recorded for one day and pass,
// keyed by claim id.
func (s *Postgres) QualityByPass(ctx context.Context, day string, pass claims.PassKind) (map[string]claims.QualityMetrics, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT claim_id, payload FROM quality_metrics WHERE day = $1 AND pass_kind = $2`,
		day, string(pass))
	if err != nil {
		return nil, fmt.Errorf("querying quality metrics for %s/%s: %w", day, pass, err)
	}
	defer rows.Close()

	result := make(map[string]claims.QualityMetrics)
	for rows.Next() {
		var claimID string
		var payload []byte
		if err := rows.Scan(&claimID, &payload); err != nil {
			return nil, fmt.Errorf("scanning quality metrics: %w", err)
		}
		var m claims.QualityMetrics
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decoding quality metrics: %w", err)
		}
		result[claimID] = m
	}
	return result, rows.Err()
}

// SaveReport stores an immutable daily reconciliation report.
func (s *Postgres) SaveReport(ctx context.Context, reportID, day string, report any) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report %s: %w", reportID, err)
	}
	_, err = s.db.DB.ExecContext(ctx,
		`INSERT INTO reconciliation_reports (report_id, day, payload, created_at)
		 VALUES ($1, $2, $3, $4)`,
		reportID, day, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving report %s: %w", reportID, err)
	}
	return nil
}

func nullableBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
