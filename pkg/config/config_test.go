package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "claims.validated", cfg.Kafka.Topics.Validated)
	assert.Equal(t, 8, cfg.Processor.Partitions)
	assert.Equal(t, 5*time.Second, cfg.Processor.WindowLength)
	assert.Equal(t, 3.0, cfg.Processor.AmountOutlierFactor)
	assert.Equal(t, 5, cfg.Processor.FrequencyLimit)
	assert.Equal(t, 48*time.Hour, cfg.Redis.DedupTTL)
	assert.Equal(t, 0.30, cfg.Scoring.CompletenessWeight)
	assert.Equal(t, 0.40, cfg.Scoring.ConsistencyWeight)
	assert.Equal(t, 30*time.Minute, cfg.Reconcile.Deadline)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
processor:
  partitions: 4
gateway:
  sourceRateLimit: 25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Processor.Partitions)
	assert.Equal(t, 25, cfg.Gateway.SourceRateLimit)
	// Untouched sections keep their defaults.
	assert.Equal(t, "claimspipeline", cfg.Postgres.Database)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MCP_SERVER_PORT", "7070")
	t.Setenv("MCP_KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("MCP_POSTGRES_HOST", "db.internal")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
}

func TestValidateScoringWeights(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Scoring.BusinessWeight = 0.5
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fatal configuration")

	cfg.Scoring.BusinessWeight = -0.3
	assert.Error(t, cfg.Validate())
}

func TestValidateProcessorSettings(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Processor.Partitions = 0
	assert.Error(t, cfg.Validate())

	cfg.Processor.Partitions = 8
	cfg.Processor.WindowLength = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateHighWaterMark(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Gateway.HighWaterMark = 0
	assert.Error(t, cfg.Validate())
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "claims",
		User:     "svc",
		Password: "secret",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 user=svc password=secret dbname=claims sslmode=disable",
		p.DSN())
}
