package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/claims/claimtest"
)

func TestValidClaimHasNoErrors(t *testing.T) {
	assert.Empty(t, Claim(claimtest.Sample()))
}

func TestValidationIsIdempotent(t *testing.T) {
	c := claimtest.Sample()
	c.Provider.NPI = "123"
	first := Claim(c)
	second := Claim(c)
	assert.Equal(t, first, second)
}

func TestErrorsAccumulate(t *testing.T) {
	// A claim with several independent problems reports all of them in one
	// pass, never just the first.
	c := claimtest.Sample()
	c.ClaimNumber = ""
	c.Provider.NPI = "12345"
	c.ClaimLines[0].DiagnosisCodes[0].Primary = false

	errs := Claim(c)
	require.Len(t, errs, 3)
	assert.Equal(t, []string{
		claims.CodeMissingField,
		claims.CodeInvalidFormat,
		claims.CodePrimaryDiagnosis,
	}, codes(errs))
}

func TestMissingRequiredFields(t *testing.T) {
	errs := Claim(&claims.Claim{})
	fields := make(map[string]bool)
	for _, e := range errs {
		fields[e.Field] = true
	}
	for _, want := range []string{
		"claim_id", "claim_number", "patient.patient_id",
		"provider.provider_id", "insurance.insurance_id", "claim_lines",
	} {
		assert.True(t, fields[want], "expected error for %s", want)
	}
}

func TestNPIFormat(t *testing.T) {
	for npi, valid := range map[string]bool{
		"1234567890":  true,
		"123456789":   false,
		"12345678901": false,
		"12345abcde":  false,
		"":            false,
	} {
		c := claimtest.Sample()
		c.Provider.NPI = npi
		errs := Claim(c)
		if valid {
			assert.Empty(t, errs, "NPI %q should be valid", npi)
		} else {
			require.NotEmpty(t, errs, "NPI %q should be invalid", npi)
			assert.Equal(t, "provider.npi", errs[0].Field)
		}
	}
}

func TestExactlyOnePrimaryDiagnosisPerLine(t *testing.T) {
	c := claimtest.Sample()
	c.ClaimLines[0].DiagnosisCodes = append(c.ClaimLines[0].DiagnosisCodes, claims.DiagnosisCode{
		Code:        "I10",
		Description: "Essential hypertension",
		Primary:     true,
	})
	errs := Claim(c)
	require.Len(t, errs, 1)
	assert.Equal(t, claims.CodePrimaryDiagnosis, errs[0].Code)
}

func TestLineSumTolerance(t *testing.T) {
	// One cent of rounding slack is allowed; two cents is a mismatch.
	c := claimtest.Sample()
	c.TotalBilledAmount = claims.MoneyFromCents(15001)
	assert.Empty(t, Claim(c))

	c.TotalBilledAmount = claims.MoneyFromCents(15002)
	errs := Claim(c)
	require.Len(t, errs, 1)
	assert.Equal(t, claims.CodeLineSumMismatch, errs[0].Code)
}

func TestNegativeAmount(t *testing.T) {
	c := claimtest.Sample()
	c.ClaimLines[0].BilledAmount = claims.MoneyFromCents(-500)
	c.TotalBilledAmount = claims.MoneyFromCents(-500)
	errs := Claim(c)
	require.NotEmpty(t, errs)
	assert.Equal(t, claims.CodeNegativeAmount, errs[0].Code)
}

func TestUnknownClaimType(t *testing.T) {
	c := claimtest.Sample()
	c.ClaimType = claims.ClaimType("chiropractic")
	errs := Claim(c)
	require.Len(t, errs, 1)
	assert.Equal(t, claims.CodeInvalidClaimType, errs[0].Code)
}

func TestRenderingProviderIDSyntax(t *testing.T) {
	c := claimtest.Sample()
	c.ClaimLines[0].RenderingProviderID = "PROV-002"
	assert.Empty(t, Claim(c))

	c.ClaimLines[0].RenderingProviderID = "not a provider!"
	errs := Claim(c)
	require.Len(t, errs, 1)
	assert.Equal(t, claims.CodeInvalidFormat, errs[0].Code)
}

func codes(errs []claims.FieldError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}
