// Package claimtest provides canonical claim fixtures shared by tests across
// the pipeline packages.
package claimtest

import (
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
)

// Sample returns a structurally sound medical claim: one office-visit line,
// matching totals, active coverage, a primary diagnosis, and complete
// addresses. Tests mutate the returned claim to produce specific failures.
func Sample() *claims.Claim {
	return &claims.Claim{
		ClaimID:     "CLM001",
		ClaimNumber: "2023-CLM001",
		ClaimType:   claims.TypeMedical,
		Patient: claims.Patient{
			PatientID:   "PAT001",
			MemberID:    "MBR001",
			FirstName:   "Jane",
			LastName:    "Doe",
			DateOfBirth: date(1985, 3, 15),
			Gender:      "F",
			Address: claims.Address{
				"street": "123 Main St",
				"city":   "Springfield",
				"state":  "IL",
				"zip":    "62701",
			},
		},
		Provider: claims.Provider{
			ProviderID: "PROV001",
			Name:       "Springfield Family Practice",
			Type:       "clinic",
			NPI:        "1234567890",
			Specialty:  "family medicine",
			Address: claims.Address{
				"street": "450 Elm Ave",
				"city":   "Springfield",
				"state":  "IL",
				"zip":    "62702",
			},
		},
		Insurance: claims.Insurance{
			InsuranceID:       "INS001",
			PayerName:         "Acme Health",
			PayerID:           "PAY001",
			GroupNumber:       "GRP-4411",
			SubscriberNumber:  "SUB-280734",
			PlanType:          "PPO",
			CoverageStartDate: date(2023, 1, 1),
		},
		ClaimLines: []claims.ClaimLine{
			{
				LineID: "LINE001",
				ProcedureCode: claims.ProcedureCode{
					Code:        "99213",
					Description: "Office visit, established patient",
					Units:       1,
				},
				DiagnosisCodes: []claims.DiagnosisCode{
					{
						Code:        "Z00.00",
						Description: "General adult medical examination",
						Primary:     true,
					},
				},
				ServiceDate:    date(2023, 8, 1),
				BilledAmount:   claims.MoneyFromCents(15000),
				PlaceOfService: "11",
			},
		},
		TotalBilledAmount: claims.MoneyFromCents(15000),
		DateOfService:     date(2023, 8, 1),
		ClaimReceivedDate: date(2023, 8, 5),
	}
}

// WithID returns Sample with distinct claim and patient identifiers, handy
// when a test needs several independent claims.
func WithID(claimID, patientID string) *claims.Claim {
	c := Sample()
	c.ClaimID = claimID
	c.ClaimNumber = "2023-" + claimID
	c.Patient.PatientID = patientID
	return c
}

func date(year int, month time.Month, day int) claims.Date {
	return claims.DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}
