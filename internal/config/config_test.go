package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ShippedConfig(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "transaction-service-group", cfg.Kafka.GroupID)
	assert.Equal(t, 100*time.Millisecond, cfg.Transfer.BaseDelay)
	assert.Equal(t, 5*time.Minute, cfg.Recovery.StaleAfter)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("postgres:\n  dsn: \"host=db\"\n"), 0o600))
	t.Setenv("POSTGRES_PASSWORD", "s3cret")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WEBHOOK_SECRET", "hook")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "host=db password=s3cret", cfg.Postgres.DSN)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "hook", cfg.Notify.Secret)
	assert.Equal(t, 3, cfg.Transfer.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Recovery.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Reset.Interval)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("recovery:\n  interval: soon\n"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}
