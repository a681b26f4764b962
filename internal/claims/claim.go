// Package claims defines the canonical claim record and the event payloads
// exchanged over the pipeline's Kafka channels. A Claim is created when the
// ingestion gateway accepts a raw submission and moves through the states
// submitted -> validated|rejected -> processed; it is never deleted by this
// subsystem.
package claims

import (
	"encoding/json"
	"strings"
	"time"
)

// ClaimType categorises a claim by the kind of care billed.
type ClaimType string

const (
	TypeMedical  ClaimType = "medical"
	TypeDental   ClaimType = "dental"
	TypeVision   ClaimType = "vision"
	TypePharmacy ClaimType = "pharmacy"
)

// claimTypeAliases maps legacy source-system spellings onto canonical types.
var claimTypeAliases = map[string]ClaimType{
	"prescription": TypePharmacy,
	"rx":           TypePharmacy,
}

// UnmarshalJSON lower-cases the incoming value and resolves known aliases.
// Unrecognised values are kept verbatim so the validator can report them.
func (t *ClaimType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if alias, ok := claimTypeAliases[s]; ok {
		*t = alias
		return nil
	}
	*t = ClaimType(s)
	return nil
}

// Known reports whether the claim type is one of the canonical values.
func (t ClaimType) Known() bool {
	switch t {
	case TypeMedical, TypeDental, TypeVision, TypePharmacy:
		return true
	}
	return false
}

// ClaimStatus tracks a claim's position in the pipeline.
type ClaimStatus string

const (
	StatusSubmitted ClaimStatus = "submitted"
	StatusValidated ClaimStatus = "validated"
	StatusRejected  ClaimStatus = "rejected"
	StatusProcessed ClaimStatus = "processed"
)

// PassKind distinguishes the streaming scoring pass from the daily batch
// reconciliation pass. Quality metrics are keyed by (claim_id, pass_kind).
type PassKind string

const (
	PassStreaming PassKind = "streaming"
	PassBatch     PassKind = "batch"
)

// Address is a free-form postal address as submitted by source systems.
type Address map[string]string

// DiagnosisCode is an ICD-10 diagnosis attached to a claim line. Exactly one
// code per line must carry Primary=true.
type DiagnosisCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Primary     bool   `json:"primary"`
	Severity    string `json:"severity,omitempty"`
}

// ProcedureCode is a CPT/HCPCS procedure billed on a claim line.
type ProcedureCode struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Modifier    string `json:"modifier,omitempty"`
	Units       int    `json:"units,omitempty"`
}

// ClaimLine is one billed procedure within a claim.
type ClaimLine struct {
	LineID              string          `json:"line_id"`
	ProcedureCode       ProcedureCode   `json:"procedure_code"`
	DiagnosisCodes      []DiagnosisCode `json:"diagnosis_codes"`
	ServiceDate         Date            `json:"service_date"`
	BilledAmount        Money           `json:"billed_amount"`
	AllowedAmount       Money           `json:"allowed_amount,omitempty"`
	PaidAmount          Money           `json:"paid_amount,omitempty"`
	PlaceOfService      string          `json:"place_of_service"`
	RenderingProviderID string          `json:"rendering_provider_id,omitempty"`
}

// Patient identifies the member the claim was billed for. Patients are
// referenced by many claims; identity is by PatientID.
type Patient struct {
	PatientID   string  `json:"patient_id"`
	MemberID    string  `json:"member_id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	DateOfBirth Date    `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Address     Address `json:"address"`
	Phone       string  `json:"phone,omitempty"`
}

// Provider is the billing provider. NPI is the 10-digit National Provider
// Identifier.
type Provider struct {
	ProviderID string  `json:"provider_id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	NPI        string  `json:"npi"`
	TaxID      string  `json:"tax_id,omitempty"`
	Address    Address `json:"address"`
	Phone      string  `json:"phone,omitempty"`
	Specialty  string  `json:"specialty,omitempty"`
}

// Insurance is the payer coverage the claim is billed against.
type Insurance struct {
	InsuranceID       string `json:"insurance_id"`
	PayerName         string `json:"payer_name"`
	PayerID           string `json:"payer_id"`
	GroupNumber       string `json:"group_number"`
	SubscriberNumber  string `json:"subscriber_number"`
	PlanType          string `json:"plan_type"`
	CoverageStartDate Date   `json:"coverage_start_date"`
	CoverageEndDate   Date   `json:"coverage_end_date,omitempty"`
}

// Claim is the root entity of the pipeline: one healthcare billing
// submission composed of one or more service lines.
type Claim struct {
	ClaimID           string      `json:"claim_id"`
	ClaimNumber       string      `json:"claim_number"`
	ClaimType         ClaimType   `json:"claim_type"`
	Status            ClaimStatus `json:"status,omitempty"`
	SourceSystem      string      `json:"source_system,omitempty"`
	Patient           Patient     `json:"patient"`
	Provider          Provider    `json:"provider"`
	Insurance         Insurance   `json:"insurance"`
	ClaimLines        []ClaimLine `json:"claim_lines"`
	TotalBilledAmount Money       `json:"total_billed_amount"`
	DateOfService     Date        `json:"date_of_service"`
	ClaimReceivedDate Date        `json:"claim_received_date,omitempty"`
	Notes             string      `json:"notes,omitempty"`
}

// LineTotal sums the billed amounts across all claim lines. Invalid amounts
// contribute zero; the validator reports them separately.
func (c *Claim) LineTotal() Money {
	var total int64
	for _, line := range c.ClaimLines {
		if line.BilledAmount.Valid() {
			total += line.BilledAmount.Cents()
		}
	}
	return MoneyFromCents(total)
}

// ProcessingDay returns the day bucket (UTC) a claim belongs to for batch
// reconciliation, derived from its received date.
func (c *Claim) ProcessingDay() string {
	return Day(c.ClaimReceivedDate.Time())
}

// Day formats a timestamp as the pipeline's processing-day key.
func Day(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
