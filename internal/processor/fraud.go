package processor

import (
	"sort"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
)

// defaultMinMedianSamples applies when no sample floor is configured. Below
// the floor the trailing median is noise and the outlier heuristic stays
// quiet.
const defaultMinMedianSamples = 5

// Detector runs the fraud heuristics over the claims of one partition. All
// claims for a patient land on the same partition, so the detector's state
// is accessed by exactly one worker goroutine and needs no locking.
//
// Every time reference is taken from the claim itself (received date, service
// dates), never the wall clock: reprocessing the same claims yields the same
// anomalies.
type Detector struct {
	cfg config.ProcessorConfig

	// submissions holds received timestamps per patient+provider pair for
	// the frequency heuristic.
	submissions map[string][]time.Time
	// amounts holds billed-amount observations per procedure code for the
	// outlier heuristic.
	amounts map[string][]amountSample
}

type amountSample struct {
	at    time.Time
	cents int64
}

// NewDetector creates a Detector with the configured thresholds.
func NewDetector(cfg config.ProcessorConfig) *Detector {
	if cfg.MinMedianSamples <= 0 {
		cfg.MinMedianSamples = defaultMinMedianSamples
	}
	return &Detector{
		cfg:         cfg,
		submissions: make(map[string][]time.Time),
		amounts:     make(map[string][]amountSample),
	}
}

// Detect evaluates all heuristics against one claim and records its
// observations for future claims. Each heuristic is independent; a claim can
// carry several anomaly codes at once.
func (d *Detector) Detect(c *claims.Claim) []claims.AnomalyCode {
	now := c.ClaimReceivedDate.Time()

	var anomalies []claims.AnomalyCode
	if d.dateAnomaly(c) {
		anomalies = append(anomalies, claims.AnomalyDate)
	}
	if d.frequencyAnomaly(c, now) {
		anomalies = append(anomalies, claims.AnomalyFrequency)
	}
	if d.amountOutlier(c, now) {
		anomalies = append(anomalies, claims.AnomalyAmountOutlier)
	}
	return anomalies
}

// dateAnomaly flags claims whose service date lies after the date the claim
// was received.
func (d *Detector) dateAnomaly(c *claims.Claim) bool {
	if !c.DateOfService.Valid() || !c.ClaimReceivedDate.Valid() {
		return false
	}
	return c.ClaimReceivedDate.Before(c.DateOfService)
}

// frequencyAnomaly counts claims per patient+provider pair inside the
// frequency window. The first FrequencyLimit claims of a burst pass clean;
// only the claims beyond the limit are flagged.
func (d *Detector) frequencyAnomaly(c *claims.Claim, now time.Time) bool {
	key := c.Patient.PatientID + "|" + c.Provider.ProviderID
	cutoff := now.Add(-d.cfg.FrequencyWindow)

	history := d.submissions[key]
	kept := history[:0]
	for _, t := range history {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	d.submissions[key] = kept

	return len(kept) > d.cfg.FrequencyLimit
}

// amountOutlier compares each line's billed amount against the trailing
// median for the same procedure code. The current claim's amounts are
// recorded after the comparison so a claim is never compared against itself.
func (d *Detector) amountOutlier(c *claims.Claim, now time.Time) bool {
	outlier := false
	cutoff := now.Add(-d.cfg.MedianWindow)

	for _, line := range c.ClaimLines {
		code := line.ProcedureCode.Code
		if code == "" || !line.BilledAmount.Valid() {
			continue
		}

		history := d.amounts[code]
		kept := history[:0]
		for _, s := range history {
			if s.at.After(cutoff) {
				kept = append(kept, s)
			}
		}

		if len(kept) >= d.cfg.MinMedianSamples {
			median := medianCents(kept)
			if median > 0 && float64(line.BilledAmount.Cents()) > d.cfg.AmountOutlierFactor*float64(median) {
				outlier = true
			}
		}

		kept = append(kept, amountSample{at: now, cents: line.BilledAmount.Cents()})
		d.amounts[code] = kept
	}
	return outlier
}

func medianCents(samples []amountSample) int64 {
	sorted := make([]int64, len(samples))
	for i, s := range samples {
		sorted[i] = s.cents
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
