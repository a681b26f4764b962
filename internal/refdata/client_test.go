package refdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akshay033333/medical-claims-pipeline/pkg/config"
)

func newRefServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"version":           "2023-08-01",
			"places_of_service": []string{"11", "21", "22"},
		})
	})
	mux.HandleFunc("GET /v1/providers/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "PROV404" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(ProviderInfo{
			ProviderID: r.PathValue("id"),
			Name:       "Springfield Family Practice",
			Specialty:  "family medicine",
		})
	})
	mux.HandleFunc("GET /v1/payers/{id}", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(PayerInfo{
			PayerID:      r.PathValue("id"),
			Name:         "Acme Health",
			PlanCategory: "commercial",
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newRefClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(config.RefDataConfig{
		BaseURL:        baseURL,
		RequestTimeout: time.Second,
	}, nil)
	require.NoError(t, err)
	return client
}

func TestClientPinsSnapshotAtStartup(t *testing.T) {
	server := newRefServer(t)
	client := newRefClient(t, server.URL)

	snap := client.Snapshot()
	assert.Equal(t, "2023-08-01", snap.Version)
	assert.True(t, snap.ValidPlaceOfService("11"))
	assert.False(t, snap.ValidPlaceOfService("99"))
}

func TestClientProviderLookup(t *testing.T) {
	server := newRefServer(t)
	client := newRefClient(t, server.URL)

	info, err := client.Provider(context.Background(), "PROV001")
	require.NoError(t, err)
	assert.Equal(t, "PROV001", info.ProviderID)
	assert.Equal(t, "family medicine", info.Specialty)

	_, err = client.Provider(context.Background(), "PROV404")
	assert.Error(t, err)
}

func TestClientPayerLookup(t *testing.T) {
	server := newRefServer(t)
	client := newRefClient(t, server.URL)

	info, err := client.Payer(context.Background(), "PAY001")
	require.NoError(t, err)
	assert.Equal(t, "Acme Health", info.Name)
	assert.Equal(t, "commercial", info.PlanCategory)
}

func TestClientFailsWithoutSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	_, err := NewClient(config.RefDataConfig{
		BaseURL:        server.URL,
		RequestTimeout: 100 * time.Millisecond,
	}, nil)
	assert.Error(t, err)
}

func TestDefaultSnapshotPlaces(t *testing.T) {
	snap := DefaultSnapshot("v1")
	assert.True(t, snap.ValidPlaceOfService("11"))
	assert.True(t, snap.ValidPlaceOfService("21"))
	assert.False(t, snap.ValidPlaceOfService(""))
	assert.False(t, snap.ValidPlaceOfService("XX"))
}
