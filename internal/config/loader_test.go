package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresWalletKeystorePath(t *testing.T) {
	t.Setenv("WALLET_KEYSTORE_PATH", "")
	t.Setenv("RPC_URL", "https://example.invalid")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresRPCURL(t *testing.T) {
	t.Setenv("WALLET_KEYSTORE_PATH", "/tmp/keystore.json")
	t.Setenv("RPC_URL", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadAppliesDefaultsWhenUnset(t *testing.T) {
	t.Setenv("WALLET_KEYSTORE_PATH", "/tmp/keystore.json")
	t.Setenv("RPC_URL", "https://example.invalid")
	t.Setenv("MAX_CONCURRENT_POSITIONS", "")
	t.Setenv("STOP_LOSS_PCT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.MaxConcurrentPositions)
	assert.Equal(t, -15.0, cfg.StopLossPct)
	assert.True(t, cfg.DryRun)
	assert.False(t, cfg.TradingEnabled)
}

func TestLoadOverridesFromEnvironment(t *testing.T) {
	t.Setenv("WALLET_KEYSTORE_PATH", "/tmp/keystore.json")
	t.Setenv("RPC_URL", "https://example.invalid")
	t.Setenv("TRADING_ENABLED", "true")
	t.Setenv("MAX_CONCURRENT_POSITIONS", "25")
	t.Setenv("STOP_LOSS_PCT", "-20.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.TradingEnabled)
	assert.Equal(t, 25, cfg.MaxConcurrentPositions)
	assert.Equal(t, -20.5, cfg.StopLossPct)
}

func TestLoadParsesCooldownTiersList(t *testing.T) {
	t.Setenv("WALLET_KEYSTORE_PATH", "/tmp/keystore.json")
	t.Setenv("RPC_URL", "https://example.invalid")
	t.Setenv("COOLDOWN_TIERS", "3600,7200,86400")

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.CooldownTiers, 3)
	assert.Equal(t, time.Hour, cfg.CooldownTiers[0])
	assert.Equal(t, 24*time.Hour, cfg.CooldownTiers[2])
}

func TestLoadFallsBackToDefaultCooldownTiersOnMalformedList(t *testing.T) {
	t.Setenv("WALLET_KEYSTORE_PATH", "/tmp/keystore.json")
	t.Setenv("RPC_URL", "https://example.invalid")
	t.Setenv("COOLDOWN_TIERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{24 * time.Hour, 48 * time.Hour}, cfg.CooldownTiers)
}

func TestGetBoolFallsBackOnUnparsableValue(t *testing.T) {
	t.Setenv("SOME_BOOL_FLAG", "not-a-bool")
	assert.Equal(t, true, getBool("SOME_BOOL_FLAG", true))
}

func TestGetFloatFallsBackOnUnparsableValue(t *testing.T) {
	t.Setenv("SOME_FLOAT_FLAG", "not-a-float")
	assert.Equal(t, 1.5, getFloat("SOME_FLOAT_FLAG", 1.5))
}
