// Command loadtest drives the ingestion gateway with synthetic claims. It
// generates structurally sound medical claims (optionally salting in a
// percentage of defective ones), submits them over the public API, and
// reports throughput, latency percentiles, and the accepted/rejected split.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
)

type Config struct {
	BaseURL     string
	Source      string
	Concurrency int
	Rate        int
	Duration    time.Duration
	InvalidPct  int
}

type Stats struct {
	totalRequests atomic.Int64
	acceptedCount atomic.Int64
	rejectedCount atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordSubmission(duration time.Duration, statusCode int, receipt *claims.SubmissionReceipt, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	switch {
	case receipt == nil:
		s.errorCount.Add(1)
	case receipt.Status == claims.StatusRejected:
		s.rejectedCount.Add(1)
	default:
		s.acceptedCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the ingestion gateway")
	source := flag.String("source", "loadtest", "X-Source-System header value")
	concurrency := flag.Int("concurrency", 10, "number of concurrent submitters")
	rate := flag.Int("rate", 0, "target claims per second across all workers (0 = unthrottled)")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	invalidPct := flag.Int("invalid-pct", 0, "percentage of claims generated with a validation defect")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Source:      *source,
		Concurrency: *concurrency,
		Rate:        *rate,
		Duration:    *duration,
		InvalidPct:  *invalidPct,
	}

	fmt.Println("=== Claims Pipeline Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Source:      %s\n", cfg.Source)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	if cfg.Rate > 0 {
		fmt.Printf("Rate:        %d claims/sec\n", cfg.Rate)
	} else {
		fmt.Printf("Rate:        unthrottled\n")
	}
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Invalid:     %d%%\n", cfg.InvalidPct)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	// One token per claim when a rate is set; workers block on the ticker
	// so the aggregate rate holds regardless of concurrency.
	var tokens <-chan time.Time
	if cfg.Rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(cfg.Rate))
		defer ticker.Stop()
		tokens = ticker.C
	}

	var seq atomic.Int64
	submitURL := cfg.BaseURL + "/api/v1/claims"

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			for {
				if tokens != nil {
					select {
					case <-ctx.Done():
						return
					case <-tokens:
					}
				} else {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				c := generateClaim(rng, seq.Add(1))
				if cfg.InvalidPct > 0 && rng.Intn(100) < cfg.InvalidPct {
					corruptClaim(rng, c)
				}

				body, err := json.Marshal(c)
				if err != nil {
					panic(fmt.Sprintf("encoding claim: %v", err))
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, submitURL, bytes.NewReader(body))
				if err != nil {
					panic(fmt.Sprintf("creating request: %v", err))
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Source-System", cfg.Source)

				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordSubmission(elapsed, 0, nil, err)
					continue
				}

				var receipt *claims.SubmissionReceipt
				if resp.StatusCode == http.StatusAccepted {
					receipt = &claims.SubmissionReceipt{}
					if decodeErr := json.NewDecoder(resp.Body).Decode(receipt); decodeErr != nil {
						receipt = nil
					}
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordSubmission(elapsed, resp.StatusCode, receipt, nil)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// procedures a synthetic claim can bill, with typical charge ranges in cents.
var procedures = []struct {
	code        string
	description string
	minCents    int64
	maxCents    int64
}{
	{"99213", "Office visit, established patient", 10000, 20000},
	{"99214", "Office visit, moderate complexity", 15000, 30000},
	{"99203", "Office visit, new patient", 15000, 25000},
	{"80053", "Comprehensive metabolic panel", 3000, 8000},
	{"85025", "Complete blood count", 2000, 6000},
	{"71046", "Chest X-ray, 2 views", 8000, 15000},
	{"93000", "Electrocardiogram", 5000, 12000},
	{"90471", "Immunization administration", 2500, 5000},
}

var diagnoses = []struct {
	code        string
	description string
}{
	{"Z00.00", "General adult medical examination"},
	{"E11.9", "Type 2 diabetes mellitus"},
	{"I10", "Essential hypertension"},
	{"J06.9", "Acute upper respiratory infection"},
	{"M54.5", "Low back pain"},
	{"R10.9", "Unspecified abdominal pain"},
}

// generateClaim builds one structurally sound claim. Identifiers cycle over
// small patient and provider pools so the downstream fraud heuristics see
// repeated actors, the way real source systems do.
func generateClaim(rng *rand.Rand, seq int64) *claims.Claim {
	patient := rng.Intn(200) + 1
	provider := rng.Intn(20) + 1
	proc := procedures[rng.Intn(len(procedures))]
	diag := diagnoses[rng.Intn(len(diagnoses))]
	amount := proc.minCents + rng.Int63n(proc.maxCents-proc.minCents+1)

	now := time.Now().UTC()
	serviceDate := claims.DateOf(now.AddDate(0, 0, -rng.Intn(14)))

	claimID := fmt.Sprintf("CLM%06d", seq)
	return &claims.Claim{
		ClaimID:     claimID,
		ClaimNumber: fmt.Sprintf("%d-%s", now.Year(), claimID),
		ClaimType:   claims.TypeMedical,
		Patient: claims.Patient{
			PatientID:   fmt.Sprintf("PAT%03d", patient),
			MemberID:    fmt.Sprintf("MBR%03d", patient),
			FirstName:   "Test",
			LastName:    fmt.Sprintf("Member%03d", patient),
			DateOfBirth: claims.DateOf(time.Date(1960+rng.Intn(40), time.Month(rng.Intn(12)+1), rng.Intn(28)+1, 0, 0, 0, 0, time.UTC)),
			Gender:      []string{"F", "M"}[rng.Intn(2)],
			Address: claims.Address{
				"street": "123 Main St",
				"city":   "Springfield",
				"state":  "IL",
				"zip":    "62701",
			},
		},
		Provider: claims.Provider{
			ProviderID: fmt.Sprintf("PROV%03d", provider),
			Name:       fmt.Sprintf("Clinic %03d", provider),
			Type:       "clinic",
			NPI:        fmt.Sprintf("1%09d", provider),
			Specialty:  "family medicine",
			Address: claims.Address{
				"street": "450 Elm Ave",
				"city":   "Springfield",
				"state":  "IL",
				"zip":    "62702",
			},
		},
		Insurance: claims.Insurance{
			InsuranceID:       fmt.Sprintf("INS%03d", patient),
			PayerName:         "Acme Health",
			PayerID:           "PAY001",
			GroupNumber:       "GRP-4411",
			SubscriberNumber:  fmt.Sprintf("SUB-%06d", patient),
			PlanType:          "PPO",
			CoverageStartDate: claims.DateOf(time.Date(now.Year()-1, 1, 1, 0, 0, 0, 0, time.UTC)),
		},
		ClaimLines: []claims.ClaimLine{
			{
				LineID: "LINE001",
				ProcedureCode: claims.ProcedureCode{
					Code:        proc.code,
					Description: proc.description,
					Units:       1,
				},
				DiagnosisCodes: []claims.DiagnosisCode{
					{
						Code:        diag.code,
						Description: diag.description,
						Primary:     true,
					},
				},
				ServiceDate:    serviceDate,
				BilledAmount:   claims.MoneyFromCents(amount),
				PlaceOfService: "11",
			},
		},
		TotalBilledAmount: claims.MoneyFromCents(amount),
		DateOfService:     serviceDate,
		ClaimReceivedDate: claims.DateOf(now),
	}
}

// corruptClaim plants one structural defect so the run exercises the
// gateway's rejection path as well.
func corruptClaim(rng *rand.Rand, c *claims.Claim) {
	switch rng.Intn(3) {
	case 0:
		c.Provider.NPI = "123"
	case 1:
		c.ClaimLines[0].DiagnosisCodes[0].Primary = false
	default:
		c.TotalBilledAmount = claims.MoneyFromCents(c.TotalBilledAmount.Cents() + 9999)
	}
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	accepted := stats.acceptedCount.Load()
	rejected := stats.rejectedCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Submissions: %d\n", total)
	fmt.Printf("Accepted:          %d\n", accepted)
	fmt.Printf("Rejected:          %d\n", rejected)
	fmt.Printf("Errors:            %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:        %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Claims/sec:        %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No submissions completed. Is the gateway running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
