package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE", "DEFAULT_DELIVERY_FEE", "LEDGER_MAX_RETRIES", "LEDGER_RETRY_BASE", "KAFKA_BROKERS"} {
		t.Setenv(k, "")
	}
	cfg := Load()

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.Store)
	assert.Equal(t, "30", cfg.DefaultDeliveryFee.String())
	assert.Equal(t, 5, cfg.LedgerMaxRetries)
	assert.Equal(t, 20*time.Millisecond, cfg.LedgerRetryBase)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE", "MEMORY")
	t.Setenv("DEFAULT_DELIVERY_FEE", "45.50")
	t.Setenv("LEDGER_MAX_RETRIES", "2")
	t.Setenv("VENDOR_LOCK_TTL", "3s")
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("AUTO_MIGRATE", "false")

	cfg := Load()

	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, "45.5", cfg.DefaultDeliveryFee.String())
	assert.Equal(t, 2, cfg.LedgerMaxRetries)
	assert.Equal(t, 3*time.Second, cfg.VendorLockTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.False(t, cfg.AutoMigrate)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DEFAULT_DELIVERY_FEE", "-3")
	t.Setenv("LOW_STOCK_THRESHOLD", "ten")
	t.Setenv("LEDGER_RETRY_BASE", "soon")

	cfg := Load()

	assert.Equal(t, "30", cfg.DefaultDeliveryFee.String())
	assert.Equal(t, 10, cfg.LowStockThreshold)
	assert.Equal(t, 20*time.Millisecond, cfg.LedgerRetryBase)
}
