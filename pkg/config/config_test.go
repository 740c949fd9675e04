package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, yaml string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/config.yaml", []byte(yaml), 0o644))
	t.Chdir(dir)
}

func TestLoadDefaults(t *testing.T) {
	writeConfig(t, "env: test\n")

	cfg, err := Load("test-version")
	require.NoError(t, err)

	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "openai", cfg.Inference.Provider)
	assert.Equal(t, 60*time.Second, cfg.Inference.Timeout())
	assert.Equal(t, 500, cfg.Ingest.BatchSize)
	assert.Equal(t, 100, cfg.Ingest.RowErrorLimit)
	assert.InDelta(t, 0.5, cfg.Ingest.MaxRejectFraction, 1e-9)
	assert.Equal(t, DefaultTimestampLayouts, cfg.Ingest.TimestampLayouts)
	assert.False(t, cfg.Blob.Enabled())
}

func TestLoadClampsSampleRows(t *testing.T) {
	writeConfig(t, "inference:\n  sample_rows: 50\n")

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Inference.SampleRows)
}

func TestLoadRejectsBadFraction(t *testing.T) {
	writeConfig(t, "ingest:\n  max_reject_fraction: 1.5\n")

	_, err := Load("dev")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_reject_fraction")
}

func TestLoadEnvOverrides(t *testing.T) {
	writeConfig(t, "env: test\n")
	t.Setenv("INFERENCE_PROVIDER", "anthropic")
	t.Setenv("INGEST_TIMESTAMP_LAYOUTS", "2006-01-02,02/01/2006")

	cfg, err := Load("dev")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Inference.Provider)
	assert.Equal(t, []string{"2006-01-02", "02/01/2006"}, cfg.Ingest.TimestampLayouts)
}

func TestDatabaseURL(t *testing.T) {
	c := DatabaseConfig{
		Host: "db", Port: 5432, User: "sitepulse", Password: "secret",
		Database: "sitepulse_engine", SSLMode: "disable",
	}
	assert.Equal(t,
		"postgres://sitepulse:secret@db:5432/sitepulse_engine?sslmode=disable",
		c.URL())
}
