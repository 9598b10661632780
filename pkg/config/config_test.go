package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMasterKey = "5b2e8f1a4c6d9e0b3a7f2c5d8e1b4a7c0d3f6a9b2c5e8d1f4a7b0c3d6e9f2a5b"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MORKET_MASTER_KEY", testMasterKey)
	t.Setenv("MORKET_HTTP_ADDR", "")
	t.Setenv("MORKET_DATABASE_URL", "")
	t.Setenv("MORKET_TEMPORAL_ADDRESS", "")
	t.Setenv("MORKET_BREAKER_WINDOW", "")
	t.Setenv("MORKET_BREAKER_THRESHOLD", "")
	t.Setenv("MORKET_BREAKER_COOLDOWN_MS", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Contains(t, cfg.DatabaseURL, "localhost")
	assert.Equal(t, "127.0.0.1:7233", cfg.TemporalAddress)
	assert.Equal(t, "enrichment", cfg.TaskQueue)
	assert.Len(t, cfg.MasterKey, 32)
	assert.Equal(t, 10, cfg.BreakerWindow)
	assert.Equal(t, 5, cfg.BreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.BreakerCooldown)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout)
	assert.Empty(t, cfg.ClickHouseAddr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MORKET_MASTER_KEY", testMasterKey)
	t.Setenv("MORKET_HTTP_ADDR", ":9090")
	t.Setenv("MORKET_DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("MORKET_TEMPORAL_ADDRESS", "temporal.internal:7233")
	t.Setenv("MORKET_TEMPORAL_TASK_QUEUE", "enrichment-eu")
	t.Setenv("MORKET_CLICKHOUSE_ADDR", "clickhouse.internal:9000")
	t.Setenv("MORKET_BREAKER_COOLDOWN_MS", "1500")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "postgres://production:5432/db", cfg.DatabaseURL)
	assert.Equal(t, "temporal.internal:7233", cfg.TemporalAddress)
	assert.Equal(t, "enrichment-eu", cfg.TaskQueue)
	assert.Equal(t, "clickhouse.internal:9000", cfg.ClickHouseAddr)
	assert.Equal(t, 1500*time.Millisecond, cfg.BreakerCooldown)
}

func TestLoad_MasterKeyValidation(t *testing.T) {
	t.Setenv("MORKET_MASTER_KEY", "")
	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MORKET_MASTER_KEY is required")

	t.Setenv("MORKET_MASTER_KEY", "not-hex")
	_, err = config.Load()
	require.Error(t, err)

	t.Setenv("MORKET_MASTER_KEY", strings.Repeat("ab", 16))
	_, err = config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestLoad_BadInteger(t *testing.T) {
	t.Setenv("MORKET_MASTER_KEY", testMasterKey)
	t.Setenv("MORKET_BREAKER_WINDOW", "ten")

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MORKET_BREAKER_WINDOW")
}
