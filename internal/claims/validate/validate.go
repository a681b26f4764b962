// Package validate implements structural and semantic validation of claim
// submissions. Checks accumulate every failure rather than stopping at the
// first, so a single submission yields a complete error report. Validation
// is a pure function of the claim: the same input always produces the same
// error set.
package validate

import (
	"fmt"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
)

// lineSumToleranceCents is the rounding tolerance for the sum-of-lines
// invariant (one cent).
const lineSumToleranceCents = 1

// Claim runs every validation check in order and returns the accumulated
// failures. An empty result means the claim is structurally sound.
func Claim(c *claims.Claim) []claims.FieldError {
	var errs []claims.FieldError
	errs = append(errs, requiredFields(c)...)
	errs = append(errs, formats(c)...)
	errs = append(errs, lines(c)...)
	errs = append(errs, lineSum(c)...)
	return errs
}

func requiredFields(c *claims.Claim) []claims.FieldError {
	var errs []claims.FieldError
	if c.ClaimID == "" {
		errs = append(errs, missing("claim_id"))
	}
	if c.ClaimNumber == "" {
		errs = append(errs, missing("claim_number"))
	}
	if c.Patient.PatientID == "" {
		errs = append(errs, missing("patient.patient_id"))
	}
	if c.Provider.ProviderID == "" {
		errs = append(errs, missing("provider.provider_id"))
	}
	if c.Insurance.InsuranceID == "" {
		errs = append(errs, missing("insurance.insurance_id"))
	}
	if len(c.ClaimLines) == 0 {
		errs = append(errs, claims.FieldError{
			Field:  "claim_lines",
			Code:   claims.CodeMissingField,
			Detail: "claim must have at least one line item",
		})
	}
	return errs
}

func formats(c *claims.Claim) []claims.FieldError {
	var errs []claims.FieldError
	if !c.ClaimType.Known() {
		errs = append(errs, claims.FieldError{
			Field:  "claim_type",
			Code:   claims.CodeInvalidClaimType,
			Detail: fmt.Sprintf("unrecognised claim type %q", string(c.ClaimType)),
		})
	}
	if !validNPI(c.Provider.NPI) {
		errs = append(errs, claims.FieldError{
			Field:  "provider.npi",
			Code:   claims.CodeInvalidFormat,
			Detail: fmt.Sprintf("NPI must be exactly 10 digits, got %q", c.Provider.NPI),
		})
	}
	errs = append(errs, checkDate("date_of_service", c.DateOfService, true)...)
	errs = append(errs, checkDate("patient.date_of_birth", c.Patient.DateOfBirth, false)...)
	errs = append(errs, checkDate("insurance.coverage_start_date", c.Insurance.CoverageStartDate, true)...)
	errs = append(errs, checkDate("insurance.coverage_end_date", c.Insurance.CoverageEndDate, false)...)
	errs = append(errs, checkAmount("total_billed_amount", c.TotalBilledAmount, true)...)
	return errs
}

func lines(c *claims.Claim) []claims.FieldError {
	var errs []claims.FieldError
	for i, line := range c.ClaimLines {
		prefix := fmt.Sprintf("claim_lines[%d]", i)
		if line.ProcedureCode.Code == "" {
			errs = append(errs, missing(prefix+".procedure_code.code"))
		}
		errs = append(errs, checkDate(prefix+".service_date", line.ServiceDate, true)...)
		errs = append(errs, checkAmount(prefix+".billed_amount", line.BilledAmount, true)...)
		errs = append(errs, checkAmount(prefix+".allowed_amount", line.AllowedAmount, false)...)
		errs = append(errs, checkAmount(prefix+".paid_amount", line.PaidAmount, false)...)
		if line.RenderingProviderID != "" && !validProviderID(line.RenderingProviderID) {
			errs = append(errs, claims.FieldError{
				Field:  prefix + ".rendering_provider_id",
				Code:   claims.CodeInvalidFormat,
				Detail: fmt.Sprintf("rendering provider id %q is not a valid provider id", line.RenderingProviderID),
			})
		}
		primaries := 0
		for _, dx := range line.DiagnosisCodes {
			if dx.Primary {
				primaries++
			}
		}
		if primaries != 1 {
			errs = append(errs, claims.FieldError{
				Field:  prefix + ".diagnosis_codes",
				Code:   claims.CodePrimaryDiagnosis,
				Detail: fmt.Sprintf("exactly one diagnosis code must be primary, found %d", primaries),
			})
		}
	}
	return errs
}

// lineSum enforces that line amounts sum to the claim total within one cent.
// A mismatch is reported, never silently corrected.
func lineSum(c *claims.Claim) []claims.FieldError {
	if len(c.ClaimLines) == 0 || !c.TotalBilledAmount.Valid() {
		return nil
	}
	for _, line := range c.ClaimLines {
		if !line.BilledAmount.Valid() {
			return nil
		}
	}
	total := c.LineTotal()
	diff := total.Cents() - c.TotalBilledAmount.Cents()
	if diff < 0 {
		diff = -diff
	}
	if diff > lineSumToleranceCents {
		return []claims.FieldError{{
			Field: "total_billed_amount",
			Code:  claims.CodeLineSumMismatch,
			Detail: fmt.Sprintf("claim total %s does not match sum of line amounts %s",
				c.TotalBilledAmount, total),
		}}
	}
	return nil
}

func checkDate(field string, d claims.Date, required bool) []claims.FieldError {
	if !d.IsSet() {
		if required {
			return []claims.FieldError{missing(field)}
		}
		return nil
	}
	if !d.Valid() {
		return []claims.FieldError{{
			Field:  field,
			Code:   claims.CodeInvalidDate,
			Detail: fmt.Sprintf("value %q does not parse to a valid calendar date", d.Raw()),
		}}
	}
	return nil
}

func checkAmount(field string, m claims.Money, required bool) []claims.FieldError {
	if !m.IsSet() {
		if required {
			return []claims.FieldError{missing(field)}
		}
		return nil
	}
	if !m.Valid() {
		return []claims.FieldError{{
			Field:  field,
			Code:   claims.CodeAmountPrecision,
			Detail: fmt.Sprintf("amount %q must be a decimal with at most two fractional digits", m.Raw()),
		}}
	}
	if m.Negative() {
		return []claims.FieldError{{
			Field:  field,
			Code:   claims.CodeNegativeAmount,
			Detail: fmt.Sprintf("amount %s must not be negative", m),
		}}
	}
	return nil
}

func missing(field string) claims.FieldError {
	return claims.FieldError{
		Field:  field,
		Code:   claims.CodeMissingField,
		Detail: field + " is required",
	}
}

// validNPI reports whether s is exactly ten ASCII digits.
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

// validProviderID checks provider id syntax only; existence is an external
// reference-data concern.
func validProviderID(s string) bool {
	if len(s) < 3 || len(s) > 64 {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
