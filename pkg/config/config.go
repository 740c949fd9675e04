package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// maxSampleRows bounds how many raw rows may be sent to the inference
// capability regardless of configuration.
const maxSampleRows = 10

// Config holds all configuration for sitepulse-engine.
// Values come from config.yaml with environment variable overrides; secrets
// (database password, inference API key) must come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8080"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// MigrationsPath is the directory containing SQL migrations.
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`

	// CatalogSeedPath points to the YAML file of core metric catalog entries
	// loaded idempotently at startup. Empty disables seeding.
	CatalogSeedPath string `yaml:"catalog_seed_path" env:"CATALOG_SEED_PATH" env-default:""`

	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Inference InferenceConfig `yaml:"inference"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Blob      BlobConfig      `yaml:"blob"`
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether bearer JWTs are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSURL is the JSON Web Key Set endpoint of the auth server.
	JWKSURL string `yaml:"jwks_url" env:"AUTH_JWKS_URL" env-default:""`
}

// DatabaseConfig holds PostgreSQL configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"sitepulse"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"sitepulse_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
}

// URL renders the pgx connection string.
func (c *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// InferenceConfig holds the column-mapping inference endpoint settings.
type InferenceConfig struct {
	// Provider selects the client implementation: "openai" (any
	// OpenAI-compatible endpoint) or "anthropic".
	Provider string `yaml:"provider" env:"INFERENCE_PROVIDER" env-default:"openai"`
	Endpoint string `yaml:"endpoint" env:"INFERENCE_ENDPOINT" env-default:"https://api.openai.com/v1"`
	Model    string `yaml:"model" env:"INFERENCE_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"-" env:"INFERENCE_API_KEY"` // Secret - not in YAML

	// TimeoutSeconds bounds a single inference call. A timeout surfaces as
	// an inference-unavailable condition, never as a data error.
	TimeoutSeconds int `yaml:"timeout_seconds" env:"INFERENCE_TIMEOUT_SECONDS" env-default:"60"`

	// SampleRows is how many raw rows accompany the headers in the proposal
	// prompt. Clamped to 10.
	SampleRows int `yaml:"sample_rows" env:"INFERENCE_SAMPLE_ROWS" env-default:"5"`
}

// Timeout returns the inference call deadline as a duration.
func (c *InferenceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// IngestConfig holds ETL policy knobs. The defaults are deliberate policy
// choices, not invariants; see DESIGN.md.
type IngestConfig struct {
	// BatchSize is how many readings are written per round trip. Cancellation
	// is observed between batches.
	BatchSize int `yaml:"batch_size" env:"INGEST_BATCH_SIZE" env-default:"500"`

	// RowErrorLimit caps how many row-local errors are retained on the
	// result; rejections past the cap are counted and summarized.
	RowErrorLimit int `yaml:"row_error_limit" env:"INGEST_ROW_ERROR_LIMIT" env-default:"100"`

	// MaxRejectFraction fails the whole ingestion when more than this
	// fraction of rows produced no writes at all.
	MaxRejectFraction float64 `yaml:"max_reject_fraction" env:"INGEST_MAX_REJECT_FRACTION" env-default:"0.5"`

	// TimestampLayouts are the accepted TIMESTAMP formats, tried in order.
	TimestampLayouts []string `yaml:"timestamp_layouts" env:"INGEST_TIMESTAMP_LAYOUTS" env-separator:","`
}

// BlobConfig holds the optional S3-compatible archive for original uploads.
type BlobConfig struct {
	Bucket    string `yaml:"bucket" env:"BLOB_BUCKET" env-default:""` // Empty disables the archive
	Region    string `yaml:"region" env:"BLOB_REGION" env-default:"us-east-1"`
	Endpoint  string `yaml:"endpoint" env:"BLOB_ENDPOINT" env-default:""` // Optional, for MinIO
	PathStyle bool   `yaml:"path_style" env:"BLOB_PATH_STYLE" env-default:"false"`
}

// Enabled reports whether the blob archive is configured.
func (c *BlobConfig) Enabled() bool { return c.Bucket != "" }

// DefaultTimestampLayouts are tried when no layouts are configured.
// 02/01/2006 is accepted; 01/02/2006 is not, to keep day/month unambiguous.
var DefaultTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Load reads configuration from config.yaml with environment variable
// overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Inference.SampleRows < 1 {
		c.Inference.SampleRows = 1
	}
	if c.Inference.SampleRows > maxSampleRows {
		c.Inference.SampleRows = maxSampleRows
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize)
	}
	if c.Ingest.MaxRejectFraction < 0 || c.Ingest.MaxRejectFraction > 1 {
		return fmt.Errorf("ingest.max_reject_fraction must be in [0,1], got %g", c.Ingest.MaxRejectFraction)
	}
	if len(c.Ingest.TimestampLayouts) == 0 {
		c.Ingest.TimestampLayouts = DefaultTimestampLayouts
	}
	return nil
}
