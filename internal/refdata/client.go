package refdata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
	"github.com/akshay033333/medical-claims-pipeline/pkg/logger"
	"github.com/akshay033333/medical-claims-pipeline/pkg/metrics"
	"github.com/akshay033333/medical-claims-pipeline/pkg/resilience"
)

// Client is the HTTP implementation of Lookup. A circuit breaker guards the
// reference service so a dead upstream fails lookups fast instead of eating
// the whole enrichment timeout on every claim.
type Client struct {
	baseURL  string
	http     *http.Client
	breaker  *resilience.CircuitBreaker
	snapshot Snapshot
	logger   *slog.Logger
}

// snapshotResponse is the wire shape of GET /v1/snapshot.
type snapshotResponse struct {
	Version         string   `json:"version"`
	PlacesOfService []string `json:"places_of_service"`
}

// NewClient fetches the current reference-data snapshot and returns a ready
// Client. The snapshot is pinned for the lifetime of the client: one
// processing pass, one version. A nil Metrics disables breaker-state
// instrumentation.
func NewClient(cfg config.RefDataConfig, m *metrics.Metrics) (*Client, error) {
	breakerCfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		breakerCfg.OnStateChange = func(name string, state resilience.State) {
			m.CircuitBreaker.WithLabelValues(name).Set(float64(state))
		}
	}
	c := &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: resilience.NewCircuitBreaker("refdata", breakerCfg),
		logger:  logger.WithComponent("refdata-client"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	snap, err := c.fetchSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching reference-data snapshot: %w", err)
	}
	c.snapshot = snap
	c.logger.Info("reference-data snapshot pinned", "version", snap.Version)
	return c, nil
}

// Provider resolves one provider id.
func (c *Client) Provider(ctx context.Context, id string) (*ProviderInfo, error) {
	var info ProviderInfo
	if err := c.get(ctx, "/v1/providers/"+url.PathEscape(id), &info); err != nil {
		return nil, fmt.Errorf("looking up provider %s: %w", id, err)
	}
	return &info, nil
}

// Payer resolves one payer id.
func (c *Client) Payer(ctx context.Context, id string) (*PayerInfo, error) {
	var info PayerInfo
	if err := c.get(ctx, "/v1/payers/"+url.PathEscape(id), &info); err != nil {
		return nil, fmt.Errorf("looking up payer %s: %w", id, err)
	}
	return &info, nil
}

// Snapshot returns the pinned reference-data snapshot.
func (c *Client) Snapshot() Snapshot {
	return c.snapshot
}

func (c *Client) fetchSnapshot(ctx context.Context) (Snapshot, error) {
	var resp snapshotResponse
	err := resilience.Retry(ctx, "refdata-snapshot", resilience.RetryConfig{}, func() error {
		return c.get(ctx, "/v1/snapshot", &resp)
	})
	if err != nil {
		return Snapshot{}, err
	}
	if len(resp.PlacesOfService) == 0 {
		return DefaultSnapshot(resp.Version), nil
	}
	return NewSnapshot(resp.Version, resp.PlacesOfService), nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("reference service returned %d for %s", resp.StatusCode, path)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response for %s: %w", path, err)
		}
		return nil
	})
}
