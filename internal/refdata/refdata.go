// Package refdata is the boundary to the external reference-data service
// used for provider/payer enrichment and for the place-of-service set the
// quality engine scores against. Lookups may fail or time out; callers
// degrade gracefully rather than block.
package refdata

import (
	"context"
)

// ProviderInfo is the reference record for a billing provider.
type ProviderInfo struct {
	ProviderID string `json:"provider_id"`
	Name       string `json:"name"`
	Specialty  string `json:"specialty"`
}

// PayerInfo is the reference record for an insurance payer.
type PayerInfo struct {
	PayerID      string `json:"payer_id"`
	Name         string `json:"name"`
	PlanCategory string `json:"plan_category"`
}

// Lookup resolves provider and payer reference data. Implementations must be
// safe for concurrent use by the partition workers.
type Lookup interface {
	Provider(ctx context.Context, id string) (*ProviderInfo, error)
	Payer(ctx context.Context, id string) (*PayerInfo, error)
	// Snapshot returns the immutable reference-data snapshot the current
	// processing pass runs against.
	Snapshot() Snapshot
}

// Snapshot is a versioned, immutable view of the reference data supplied to
// the quality engine. Both scoring passes record the version they used so a
// score divergence between passes is explainable.
type Snapshot struct {
	Version         string
	placesOfService map[string]struct{}
}

// NewSnapshot builds a snapshot from a version tag and the set of valid
// place-of-service codes.
func NewSnapshot(version string, places []string) Snapshot {
	set := make(map[string]struct{}, len(places))
	for _, p := range places {
		set[p] = struct{}{}
	}
	return Snapshot{Version: version, placesOfService: set}
}

// ValidPlaceOfService reports whether code is a known place-of-service code.
func (s Snapshot) ValidPlaceOfService(code string) bool {
	_, ok := s.placesOfService[code]
	return ok
}

// defaultPlacesOfService is the standard CMS place-of-service code set used
// when the reference service does not supply one.
var defaultPlacesOfService = []string{
	"01", "02", "10", "11", "12", "19", "20", "21", "22", "23",
	"24", "31", "32", "34", "41", "42", "49", "50", "51", "52",
	"53", "60", "61", "62", "65", "71", "72", "81", "99",
}

// DefaultSnapshot returns a snapshot with the built-in place-of-service set,
// tagged with the given version.
func DefaultSnapshot(version string) Snapshot {
	return NewSnapshot(version, defaultPlacesOfService)
}
