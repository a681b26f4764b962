package claims

import "time"

// FieldError is one structural or business-rule validation failure. Error
// reports are always complete: a submission carries every failure detected,
// never just the first.
type FieldError struct {
	Field  string `json:"field"`
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Validation failure codes.
const (
	CodeMissingField      = "MISSING_FIELD"
	CodeInvalidFormat     = "INVALID_FORMAT"
	CodeInvalidDate       = "INVALID_DATE"
	CodeNegativeAmount    = "NEGATIVE_AMOUNT"
	CodeAmountPrecision   = "AMOUNT_PRECISION"
	CodePrimaryDiagnosis  = "PRIMARY_DIAGNOSIS"
	CodeLineSumMismatch   = "LINE_SUM_MISMATCH"
	CodeInvalidClaimType  = "INVALID_CLAIM_TYPE"
	CodeCoverageNotActive = "COVERAGE_NOT_ACTIVE"
)

// SubmissionReceipt is returned to the submitter for every claim, accepted
// or rejected.
type SubmissionReceipt struct {
	ClaimID string       `json:"claim_id"`
	Status  ClaimStatus  `json:"status"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// RejectedEvent is published to claims.rejected. Rejections are never
// dropped silently; the full error list travels with the claim for audit.
type RejectedEvent struct {
	Claim      Claim        `json:"claim"`
	Errors     []FieldError `json:"errors"`
	RejectedAt time.Time    `json:"rejected_at"`
}

// AnomalyCode identifies one fraud heuristic finding.
type AnomalyCode string

const (
	AnomalyAmountOutlier AnomalyCode = "AMOUNT_OUTLIER"
	AnomalyFrequency     AnomalyCode = "FREQUENCY_ANOMALY"
	AnomalyDate          AnomalyCode = "DATE_ANOMALY"
)

// Severity grades an alert for downstream triage.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// SeverityFor maps a set of anomaly codes to the highest applicable
// severity.
func SeverityFor(codes []AnomalyCode) Severity {
	severity := SeverityLow
	for _, code := range codes {
		switch code {
		case AnomalyAmountOutlier, AnomalyFrequency:
			return SeverityHigh
		case AnomalyDate:
			severity = SeverityMedium
		}
	}
	return severity
}

// Enrichment holds the reference-data fields attached by the streaming
// processor. LookupIncomplete marks a claim whose lookups failed after one
// retry; the claim is forwarded anyway, never blocked.
type Enrichment struct {
	ProviderName      string `json:"provider_name,omitempty"`
	ProviderSpecialty string `json:"provider_specialty,omitempty"`
	PayerName         string `json:"payer_name,omitempty"`
	PlanCategory      string `json:"plan_category,omitempty"`
	LookupIncomplete  bool   `json:"lookup_incomplete"`
	RefDataVersion    string `json:"ref_data_version"`
}

// QualityMetrics is the immutable output of one scoring pass over one claim.
// A later pass supersedes it under a new (claim_id, pass_kind) key; existing
// records are never mutated.
type QualityMetrics struct {
	ClaimID           string    `json:"claim_id"`
	PassKind          PassKind  `json:"pass_kind"`
	OverallScore      float64   `json:"overall_score"`
	CompletenessScore float64   `json:"completeness_score"`
	ConsistencyScore  float64   `json:"consistency_score"`
	BusinessScore     float64   `json:"business_rule_score"`
	AnomaliesDetected []string  `json:"anomalies_detected,omitempty"`
	ProcessingTimeMS  int64     `json:"processing_time_ms"`
	RefDataVersion    string    `json:"ref_data_version"`
	ComputedAt        time.Time `json:"computed_at"`
}

// ProcessedEvent is published to claims.processed for every claim that
// clears the streaming enrichment window.
type ProcessedEvent struct {
	Claim       Claim          `json:"claim"`
	Enrichment  Enrichment     `json:"enrichment"`
	Anomalies   []AnomalyCode  `json:"anomalies,omitempty"`
	Quality     QualityMetrics `json:"quality"`
	Partition   int            `json:"partition"`
	Window      int64          `json:"window"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// AlertEvent is published to claims.alerts when fraud heuristics fire.
type AlertEvent struct {
	AlertID   string        `json:"alert_id"`
	ClaimID   string        `json:"claim_id"`
	Anomalies []AnomalyCode `json:"anomalies"`
	Severity  Severity      `json:"severity"`
	CreatedAt time.Time     `json:"created_at"`
}
