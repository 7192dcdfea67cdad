package config

import (
	"testing"
	"time"

	"github.com/ayo6706/poolcredit/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, domain.WrappedNativeAsset, cfg.ReserveAsset)
	assert.Equal(t, EventsBackendLog, cfg.EventsBackend)
	assert.Equal(t, 30*time.Second, cfg.LiquidationInterval)
	assert.Equal(t, int32(20), cfg.LiquidationBatchSize)
	assert.Equal(t, uint64(0), cfg.MaxFixedFee)
	assert.False(t, cfg.AutoLiquidate)
}

func TestLoad_PrefixedAliases(t *testing.T) {
	t.Setenv("POOLCREDIT_JWT_SECRET", testSecret)
	t.Setenv("POOLCREDIT_EVENTS_BACKEND", "NATS")
	t.Setenv("POOLCREDIT_MAX_FIXED_FEE", "250000000")
	t.Setenv("POOLCREDIT_LIQUIDATION_POLL_INTERVAL", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EventsBackendNATS, cfg.EventsBackend)
	assert.Equal(t, uint64(250_000_000), cfg.MaxFixedFee)
	assert.Equal(t, 5*time.Second, cfg.LiquidationInterval)
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing secret", env: map[string]string{}},
		{name: "short secret", env: map[string]string{"JWT_SECRET": "short"}},
		{name: "unknown backend", env: map[string]string{"JWT_SECRET": testSecret, "EVENTS_BACKEND": "kafka"}},
		{name: "auto liquidate without keeper", env: map[string]string{"JWT_SECRET": testSecret, "AUTO_LIQUIDATE": "true"}},
		{name: "bad interval", env: map[string]string{"JWT_SECRET": testSecret, "LIQUIDATION_POLL_INTERVAL": "soon"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
