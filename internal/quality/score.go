// Package quality computes the deterministic per-claim quality score. Given
// the same claim and the same reference-data snapshot, Score always returns
// identical sub-scores and overall score, which is what makes the
// batch-versus-streaming reconciliation comparison meaningful.
package quality

import (
	"fmt"
	"math"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
)

// consistencyCap is the hard ceiling applied to the overall score when any
// consistency check fails: structural inconsistency cannot be offset by
// completeness.
const consistencyCap = 70.0

// Quality-check anomaly codes recorded in QualityMetrics.AnomaliesDetected.
const (
	CheckLineSum          = "LINE_SUM_MISMATCH"
	CheckDateOrder        = "DATE_ORDER"
	CheckNPIFormat        = "NPI_FORMAT"
	CheckPrimaryDiagnosis = "PRIMARY_DIAGNOSIS"
	CheckCoverageActive   = "COVERAGE_NOT_ACTIVE"
	CheckPlaceOfService   = "PLACE_OF_SERVICE"
	CheckClaimType        = "CLAIM_TYPE"
)

// Engine scores claims with fixed weights. Construction fails on weights
// that do not describe a convex combination; that is a fatal configuration
// error and nothing should be processed with it.
type Engine struct {
	weights config.ScoringConfig
}

// NewEngine validates the weights and returns a ready Engine.
func NewEngine(cfg config.ScoringConfig) (*Engine, error) {
	if cfg.CompletenessWeight < 0 || cfg.ConsistencyWeight < 0 || cfg.BusinessWeight < 0 {
		return nil, fmt.Errorf("fatal configuration: scoring weights must be non-negative, got %+v", cfg)
	}
	sum := cfg.CompletenessWeight + cfg.ConsistencyWeight + cfg.BusinessWeight
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("fatal configuration: scoring weights must sum to 1.0, got %.4f", sum)
	}
	return &Engine{weights: cfg}, nil
}

// Score computes QualityMetrics for one claim and one pass. The score is a
// pure function of the claim and snapshot; ProcessingTimeMS and ComputedAt
// are measurement metadata, not part of the score.
func (e *Engine) Score(c *claims.Claim, pass claims.PassKind, snap refdata.Snapshot) claims.QualityMetrics {
	start := time.Now()

	completeness := completenessScore(c)
	consistency, consistencyFailed, anomalies := consistencyScore(c)
	business, businessAnomalies := businessScore(c, snap)
	anomalies = append(anomalies, businessAnomalies...)

	overall := e.weights.CompletenessWeight*completeness +
		e.weights.ConsistencyWeight*consistency +
		e.weights.BusinessWeight*business
	if consistencyFailed && overall > consistencyCap {
		overall = consistencyCap
	}

	return claims.QualityMetrics{
		ClaimID:           c.ClaimID,
		PassKind:          pass,
		OverallScore:      round1(overall),
		CompletenessScore: round1(completeness),
		ConsistencyScore:  round1(consistency),
		BusinessScore:     round1(business),
		AnomaliesDetected: anomalies,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
		RefDataVersion:    snap.Version,
		ComputedAt:        time.Now().UTC(),
	}
}

// completenessScore measures presence of the optional fields a well-formed
// claim carries: descriptions, addresses, subscriber identifiers, secondary
// diagnoses.
func completenessScore(c *claims.Claim) float64 {
	checks := []bool{
		allProcedureDescriptions(c),
		allDiagnosisDescriptions(c),
		addressComplete(c.Patient.Address),
		addressComplete(c.Provider.Address),
		c.Patient.DateOfBirth.Valid(),
		c.Insurance.GroupNumber != "" && c.Insurance.SubscriberNumber != "",
		hasSecondaryDiagnosis(c),
	}
	return ratio(checks)
}

// consistencyScore runs the structural checks. Any failure both lowers the
// sub-score and caps the overall score at 70.
func consistencyScore(c *claims.Claim) (score float64, failed bool, anomalies []string) {
	lineSumOK := lineSumConsistent(c)
	datesOK := datesOrdered(c)
	npiOK := validNPI(c.Provider.NPI)
	primariesOK := onePrimaryPerLine(c)

	if !lineSumOK {
		anomalies = append(anomalies, CheckLineSum)
	}
	if !datesOK {
		anomalies = append(anomalies, CheckDateOrder)
	}
	if !npiOK {
		anomalies = append(anomalies, CheckNPIFormat)
	}
	if !primariesOK {
		anomalies = append(anomalies, CheckPrimaryDiagnosis)
	}

	checks := []bool{lineSumOK, datesOK, npiOK, primariesOK}
	return ratio(checks), len(anomalies) > 0, anomalies
}

// businessScore runs the business-rule checks against the reference-data
// snapshot.
func businessScore(c *claims.Claim, snap refdata.Snapshot) (score float64, anomalies []string) {
	coverageOK := coverageActive(c)
	placesOK := placesOfServiceValid(c, snap)
	typeOK := c.ClaimType.Known()

	if !coverageOK {
		anomalies = append(anomalies, CheckCoverageActive)
	}
	if !placesOK {
		anomalies = append(anomalies, CheckPlaceOfService)
	}
	if !typeOK {
		anomalies = append(anomalies, CheckClaimType)
	}

	checks := []bool{coverageOK, placesOK, typeOK}
	return ratio(checks), anomalies
}

func allProcedureDescriptions(c *claims.Claim) bool {
	if len(c.ClaimLines) == 0 {
		return false
	}
	for _, line := range c.ClaimLines {
		if line.ProcedureCode.Description == "" {
			return false
		}
	}
	return true
}

func allDiagnosisDescriptions(c *claims.Claim) bool {
	if len(c.ClaimLines) == 0 {
		return false
	}
	for _, line := range c.ClaimLines {
		for _, dx := range line.DiagnosisCodes {
			if dx.Description == "" {
				return false
			}
		}
	}
	return true
}

func addressComplete(a claims.Address) bool {
	for _, key := range []string{"street", "city", "state", "zip"} {
		if a[key] == "" {
			return false
		}
	}
	return true
}

func hasSecondaryDiagnosis(c *claims.Claim) bool {
	for _, line := range c.ClaimLines {
		for _, dx := range line.DiagnosisCodes {
			if !dx.Primary {
				return true
			}
		}
	}
	return false
}

func lineSumConsistent(c *claims.Claim) bool {
	if len(c.ClaimLines) == 0 || !c.TotalBilledAmount.Valid() {
		return false
	}
	for _, line := range c.ClaimLines {
		if !line.BilledAmount.Valid() {
			return false
		}
	}
	diff := c.LineTotal().Cents() - c.TotalBilledAmount.Cents()
	if diff < 0 {
		diff = -diff
	}
	return diff <= 1
}

func datesOrdered(c *claims.Claim) bool {
	if !c.DateOfService.Valid() {
		return false
	}
	if c.ClaimReceivedDate.Valid() && c.DateOfService.After(c.ClaimReceivedDate) {
		return false
	}
	for _, line := range c.ClaimLines {
		if !line.ServiceDate.Valid() {
			return false
		}
		if c.ClaimReceivedDate.Valid() && line.ServiceDate.After(c.ClaimReceivedDate) {
			return false
		}
	}
	return true
}

func onePrimaryPerLine(c *claims.Claim) bool {
	if len(c.ClaimLines) == 0 {
		return false
	}
	for _, line := range c.ClaimLines {
		primaries := 0
		for _, dx := range line.DiagnosisCodes {
			if dx.Primary {
				primaries++
			}
		}
		if primaries != 1 {
			return false
		}
	}
	return true
}

func coverageActive(c *claims.Claim) bool {
	start := c.Insurance.CoverageStartDate
	if !start.Valid() || !c.DateOfService.Valid() {
		return false
	}
	if c.DateOfService.Before(start) {
		return false
	}
	end := c.Insurance.CoverageEndDate
	if end.Valid() && c.DateOfService.After(end) {
		return false
	}
	return true
}

func placesOfServiceValid(c *claims.Claim, snap refdata.Snapshot) bool {
	if len(c.ClaimLines) == 0 {
		return false
	}
	for _, line := range c.ClaimLines {
		if !snap.ValidPlaceOfService(line.PlaceOfService) {
			return false
		}
	}
	return true
}

func validNPI(s string) bool {
	if len(s) != 10 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func ratio(checks []bool) float64 {
	passed := 0
	for _, ok := range checks {
		if ok {
			passed++
		}
	}
	return 100 * float64(passed) / float64(len(checks))
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
