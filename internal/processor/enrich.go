package processor

import (
	"context"

	"github.com/akshay033333/medical-claims-pipeline/internal/claims"
	"github.com/akshay033333/medical-claims-pipeline/internal/refdata"
	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
	"github.com/akshay033333/medical-claims-pipeline/pkg/resilience"
)

// Enricher attaches provider and payer reference data to claims. Each lookup
// runs under the configured timeout so one slow upstream cannot stall a
// whole processing window.
type Enricher struct {
	lookup  refdata.Lookup
	cfg     config.ProcessorConfig
	metrics *metrics.Metrics
}

// NewEnricher creates an Enricher bound to a lookup client.
func NewEnricher(lookup refdata.Lookup, cfg config.ProcessorConfig, m *metrics.Metrics) *Enricher {
	return &Enricher{lookup: lookup, cfg: cfg, metrics: m}
}

// Enrich resolves reference data for one claim. The second return value
// reports whether every lookup succeeded; on false the caller decides
// between retrying in the next window and forwarding the claim with
// Enrichment.LookupIncomplete set. The claim is never blocked on reference
// data.
func (e *Enricher) Enrich(ctx context.Context, c *claims.Claim) (claims.Enrichment, bool) {
	enrichment := claims.Enrichment{
		RefDataVersion: e.lookup.Snapshot().Version,
	}
	complete := true

	var provider *refdata.ProviderInfo
	err := resilience.WithTimeout(ctx, e.cfg.LookupTimeout, "provider-lookup", func(ctx context.Context) error {
		var err error
		provider, err = e.lookup.Provider(ctx, c.Provider.ProviderID)
		return err
	})
	if err != nil {
		e.metrics.LookupFailures.WithLabelValues("provider").Inc()
		complete = false
	} else if provider != nil {
		enrichment.ProviderName = provider.Name
		enrichment.ProviderSpecialty = provider.Specialty
	}

	var payer *refdata.PayerInfo
	err = resilience.WithTimeout(ctx, e.cfg.LookupTimeout, "payer-lookup", func(ctx context.Context) error {
		var err error
		payer, err = e.lookup.Payer(ctx, c.Insurance.PayerID)
		return err
	})
	if err != nil {
		e.metrics.LookupFailures.WithLabelValues("payer").Inc()
		complete = false
	} else if payer != nil {
		enrichment.PayerName = payer.Name
		enrichment.PlanCategory = payer.PlanCategory
	}

	return enrichment, complete
}
