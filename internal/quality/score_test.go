package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/claims/claimtest"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(config.ScoringConfig{
		CompletenessWeight: 0.30,
		ConsistencyWeight:  0.40,
		BusinessWeight:     0.30,
	})
	require.NoError(t, err)
	return engine
}

func testSnapshot() refdata.Snapshot {
	return refdata.DefaultSnapshot("test-v1")
}

func TestNewEngineRejectsBadWeights(t *testing.T) {
	_, err := NewEngine(config.ScoringConfig{
		CompletenessWeight: 0.5,
		ConsistencyWeight:  0.5,
		BusinessWeight:     0.5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fatal configuration")

	_, err = NewEngine(config.ScoringConfig{
		CompletenessWeight: -0.1,
		ConsistencyWeight:  0.8,
		BusinessWeight:     0.3,
	})
	require.Error(t, err)
}

func TestScoreWellFormedClaim(t *testing.T) {
	// The sample claim passes every consistency and business check and all
	// completeness checks except the secondary diagnosis, so it scores
	// 0.3*(6/7*100) + 0.4*100 + 0.3*100 = 95.7.
	engine := testEngine(t)
	qm := engine.Score(claimtest.Sample(), claims.PassStreaming, testSnapshot())

	assert.InDelta(t, 85.7, qm.CompletenessScore, 0.05)
	assert.Equal(t, 100.0, qm.ConsistencyScore)
	assert.Equal(t, 100.0, qm.BusinessScore)
	assert.Equal(t, 95.7, qm.OverallScore)
	assert.Empty(t, qm.AnomaliesDetected)
	assert.Equal(t, "test-v1", qm.RefDataVersion)
	assert.Equal(t, claims.PassStreaming, qm.PassKind)
}

func TestScoreIsDeterministic(t *testing.T) {
	engine := testEngine(t)
	snap := testSnapshot()
	c := claimtest.Sample()
	c.Provider.NPI = "bogus"

	first := engine.Score(c, claims.PassStreaming, snap)
	second := engine.Score(c, claims.PassBatch, snap)

	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.CompletenessScore, second.CompletenessScore)
	assert.Equal(t, first.ConsistencyScore, second.ConsistencyScore)
	assert.Equal(t, first.BusinessScore, second.BusinessScore)
	assert.Equal(t, first.AnomaliesDetected, second.AnomaliesDetected)
}

func TestConsistencyFailureCapsOverall(t *testing.T) {
	// An otherwise perfect claim with two primary diagnoses on one line
	// cannot score above 70, however complete it is.
	engine := testEngine(t)
	c := claimtest.Sample()
	c.ClaimLines[0].DiagnosisCodes = append(c.ClaimLines[0].DiagnosisCodes, claims.DiagnosisCode{
		Code:        "I10",
		Description: "Essential hypertension",
		Primary:     true,
	})

	qm := engine.Score(c, claims.PassStreaming, testSnapshot())
	assert.LessOrEqual(t, qm.OverallScore, 70.0)
	assert.Contains(t, qm.AnomaliesDetected, CheckPrimaryDiagnosis)
}

func TestLineSumMismatchCapsOverall(t *testing.T) {
	engine := testEngine(t)
	c := claimtest.Sample()
	c.TotalBilledAmount = claims.MoneyFromCents(20000)

	qm := engine.Score(c, claims.PassStreaming, testSnapshot())
	assert.LessOrEqual(t, qm.OverallScore, 70.0)
	assert.Contains(t, qm.AnomaliesDetected, CheckLineSum)
}

func TestBusinessChecksLowerWithoutCapping(t *testing.T) {
	engine := testEngine(t)
	c := claimtest.Sample()
	c.ClaimLines[0].PlaceOfService = "98"

	qm := engine.Score(c, claims.PassStreaming, testSnapshot())
	assert.Equal(t, 100.0, qm.ConsistencyScore)
	assert.InDelta(t, 66.7, qm.BusinessScore, 0.05)
	assert.Greater(t, qm.OverallScore, 70.0)
	assert.Contains(t, qm.AnomaliesDetected, CheckPlaceOfService)
}

func TestCoverageEndDateBoundsService(t *testing.T) {
	engine := testEngine(t)
	c := claimtest.Sample()
	c.Insurance.CoverageEndDate = date2(2023, 6, 30)

	qm := engine.Score(c, claims.PassStreaming, testSnapshot())
	assert.Contains(t, qm.AnomaliesDetected, CheckCoverageActive)
}

func TestSecondaryDiagnosisCompletesClaim(t *testing.T) {
	engine := testEngine(t)
	c := claimtest.Sample()
	c.ClaimLines[0].DiagnosisCodes = append(c.ClaimLines[0].DiagnosisCodes, claims.DiagnosisCode{
		Code:        "E78.5",
		Description: "Hyperlipidemia, unspecified",
		Primary:     false,
	})

	qm := engine.Score(c, claims.PassStreaming, testSnapshot())
	assert.Equal(t, 100.0, qm.CompletenessScore)
	assert.Equal(t, 100.0, qm.OverallScore)
}

func date2(year int, month time.Month, day int) claims.Date {
	return claims.DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}
