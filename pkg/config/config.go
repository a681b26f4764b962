// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Gateway, Processor, Scoring,
// Reconcile, etc.).
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Processor ProcessorConfig `yaml:"processor"`
	RefData   RefDataConfig   `yaml:"refData"`
	Scoring   ScoringConfig   `yaml:"scoring"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the claim log.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps the pipeline's logical channels to Kafka topic names.
type KafkaTopics struct {
	Raw       string `yaml:"raw"`
	Validated string `yaml:"validated"`
	Rejected  string `yaml:"rejected"`
	Processed string `yaml:"processed"`
	Alerts    string `yaml:"alerts"`
	Quality   string `yaml:"quality"`
}

// RedisConfig holds Redis connection parameters for submission deduplication.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	DedupTTL time.Duration `yaml:"dedupTTL"`
}

// GatewayConfig controls the ingestion gateway's admission behaviour.
type GatewayConfig struct {
	// SourceRateLimit is the number of submissions each source system may
	// make per SourceRateWindow before being backpressured.
	SourceRateLimit  int           `yaml:"sourceRateLimit"`
	SourceRateWindow time.Duration `yaml:"sourceRateWindow"`
	// HighWaterMark bounds the number of in-flight submissions; beyond it
	// the gateway blocks the submitter instead of buffering.
	HighWaterMark int `yaml:"highWaterMark"`
}

// ProcessorConfig controls the streaming enrichment processor's windowing,
// partitioning, and fraud thresholds.
type ProcessorConfig struct {
	WindowLength  time.Duration `yaml:"windowLength"`
	MaxWindowWait time.Duration `yaml:"maxWindowWait"`
	Partitions    int           `yaml:"partitions"`
	LookupTimeout time.Duration `yaml:"lookupTimeout"`
	// AmountOutlierFactor flags billed amounts above factor x the trailing
	// median for the same procedure code.
	AmountOutlierFactor float64       `yaml:"amountOutlierFactor"`
	MedianWindow        time.Duration `yaml:"medianWindow"`
	// MinMedianSamples is the number of prior observations a procedure code
	// needs before the outlier heuristic fires; below it the median is
	// noise.
	MinMedianSamples int `yaml:"minMedianSamples"`
	// FrequencyLimit is the number of claims per patient+provider pair
	// allowed inside FrequencyWindow before FREQUENCY_ANOMALY fires.
	FrequencyLimit  int           `yaml:"frequencyLimit"`
	FrequencyWindow time.Duration `yaml:"frequencyWindow"`
}

// RefDataConfig holds the reference-data service endpoint used for
// provider/payer enrichment lookups.
type RefDataConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// ScoringConfig holds the quality score weights. Weights must sum to 1.0;
// Validate rejects anything else at startup.
type ScoringConfig struct {
	CompletenessWeight float64 `yaml:"completenessWeight"`
	ConsistencyWeight  float64 `yaml:"consistencyWeight"`
	BusinessWeight     float64 `yaml:"businessWeight"`
}

// ReconcileConfig controls the batch reconciliation job.
type ReconcileConfig struct {
	// Deadline bounds a single reconciliation run; exceeding it marks the
	// daily report incomplete.
	Deadline       time.Duration `yaml:"deadline"`
	Workers        int           `yaml:"workers"`
	ScoreTolerance float64       `yaml:"scoreTolerance"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides, and validates the result. It returns a Config populated with
// sensible defaults for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline must not start with. Scoring
// weights that do not sum to 1 would make every quality score meaningless,
// so they halt startup rather than degrade.
func (c *Config) Validate() error {
	w := c.Scoring
	if w.CompletenessWeight < 0 || w.ConsistencyWeight < 0 || w.BusinessWeight < 0 {
		return fmt.Errorf("fatal configuration: scoring weights must be non-negative, got %+v", w)
	}
	if math.Abs(w.CompletenessWeight+w.ConsistencyWeight+w.BusinessWeight-1.0) > 1e-9 {
		return fmt.Errorf("fatal configuration: scoring weights must sum to 1.0, got %.4f",
			w.CompletenessWeight+w.ConsistencyWeight+w.BusinessWeight)
	}
	if c.Processor.WindowLength <= 0 {
		return fmt.Errorf("fatal configuration: processor window length must be positive, got %v", c.Processor.WindowLength)
	}
	if c.Processor.Partitions <= 0 {
		return fmt.Errorf("fatal configuration: processor partitions must be positive, got %d", c.Processor.Partitions)
	}
	if c.Gateway.HighWaterMark <= 0 {
		return fmt.Errorf("fatal configuration: gateway high-water mark must be positive, got %d", c.Gateway.HighWaterMark)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "claimspipeline",
			User:            "claimspipeline",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "claimspipeline-group",
			Topics: KafkaTopics{
				Raw:       "claims.raw",
				Validated: "claims.validated",
				Rejected:  "claims.rejected",
				Processed: "claims.processed",
				Alerts:    "claims.alerts",
				Quality:   "claims.quality",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			DedupTTL: 48 * time.Hour,
		},
		Gateway: GatewayConfig{
			SourceRateLimit:  100,
			SourceRateWindow: time.Second,
			HighWaterMark:    1000,
		},
		Processor: ProcessorConfig{
			WindowLength:        5 * time.Second,
			MaxWindowWait:       10 * time.Second,
			Partitions:          8,
			LookupTimeout:       500 * time.Millisecond,
			AmountOutlierFactor: 3.0,
			MedianWindow:        30 * 24 * time.Hour,
			MinMedianSamples:    5,
			FrequencyLimit:      5,
			FrequencyWindow:     24 * time.Hour,
		},
		RefData: RefDataConfig{
			BaseURL:        "http://localhost:8090",
			RequestTimeout: 500 * time.Millisecond,
		},
		Scoring: ScoringConfig{
			CompletenessWeight: 0.30,
			ConsistencyWeight:  0.40,
			BusinessWeight:     0.30,
		},
		Reconcile: ReconcileConfig{
			Deadline:       30 * time.Minute,
			Workers:        4,
			ScoreTolerance: 1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads MCP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MCP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MCP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("MCP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("MCP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("MCP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("MCP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("MCP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("MCP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("MCP_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("MCP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MCP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MCP_REFDATA_BASE_URL"); v != "" {
		cfg.RefData.BaseURL = v
	}
	if v := os.Getenv("MCP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MCP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MCP_PROCESSOR_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Processor.Partitions = n
		}
	}
	if v := os.Getenv("MCP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
