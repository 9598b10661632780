// Package config loads process configuration from environment variables.
// Both binaries (the API server and the enrichment worker) share one Config.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds server and worker configuration.
type Config struct {
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string

	// MasterKey is the 32-byte vault master key, decoded from 64 hex chars.
	MasterKey []byte

	TemporalAddress   string
	TemporalNamespace string
	TaskQueue         string

	// ClickHouseAddr empty disables credit telemetry.
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string

	// RedisAddr empty selects process-local provider pacing.
	RedisAddr string

	// ProviderCatalog is an optional YAML catalog path; empty uses the
	// compiled-in defaults.
	ProviderCatalog string

	BreakerWindow    int
	BreakerThreshold int
	BreakerCooldown  time.Duration

	WebhookTimeout time.Duration
}

// Load reads configuration from the environment. It fails when the master
// key is missing or malformed; everything else has a usable default.
func Load() (*Config, error) {
	keyHex := os.Getenv("MORKET_MASTER_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("config: MORKET_MASTER_KEY is required")
	}
	masterKey, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("config: MORKET_MASTER_KEY is not valid hex: %w", err)
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("config: MORKET_MASTER_KEY must decode to 32 bytes, got %d", len(masterKey))
	}

	cfg := &Config{
		HTTPAddr:           getenv("MORKET_HTTP_ADDR", ":8080"),
		LogLevel:           getenv("MORKET_LOG_LEVEL", "INFO"),
		DatabaseURL:        getenv("MORKET_DATABASE_URL", "postgres://morket@localhost:5432/morket?sslmode=disable"),
		MasterKey:          masterKey,
		TemporalAddress:    getenv("MORKET_TEMPORAL_ADDRESS", "127.0.0.1:7233"),
		TemporalNamespace:  getenv("MORKET_TEMPORAL_NAMESPACE", "default"),
		TaskQueue:          getenv("MORKET_TEMPORAL_TASK_QUEUE", "enrichment"),
		ClickHouseAddr:     os.Getenv("MORKET_CLICKHOUSE_ADDR"),
		ClickHouseDatabase: getenv("MORKET_CLICKHOUSE_DATABASE", "morket"),
		ClickHouseUser:     getenv("MORKET_CLICKHOUSE_USER", "default"),
		ClickHousePassword: os.Getenv("MORKET_CLICKHOUSE_PASSWORD"),
		RedisAddr:          os.Getenv("MORKET_REDIS_ADDR"),
		ProviderCatalog:    os.Getenv("MORKET_PROVIDER_CATALOG"),
	}

	cfg.BreakerWindow, err = getenvInt("MORKET_BREAKER_WINDOW", 10)
	if err != nil {
		return nil, err
	}
	cfg.BreakerThreshold, err = getenvInt("MORKET_BREAKER_THRESHOLD", 5)
	if err != nil {
		return nil, err
	}
	cooldownMs, err := getenvInt("MORKET_BREAKER_COOLDOWN_MS", 60000)
	if err != nil {
		return nil, err
	}
	cfg.BreakerCooldown = time.Duration(cooldownMs) * time.Millisecond

	timeoutMs, err := getenvInt("MORKET_WEBHOOK_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	cfg.WebhookTimeout = time.Duration(timeoutMs) * time.Millisecond

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	return n, nil
}
