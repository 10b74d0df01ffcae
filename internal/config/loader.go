// Package config loads the engine's tunables from the environment, the
// same way the rest of this codebase's services bootstrap themselves:
// godotenv first, then os.Getenv with an inline default per field.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lp-agent/internal/errs"
)

// Config holds every tunable named in the engine's external-interfaces
// table: kill switches, sizing/capacity bounds, exit thresholds, safety
// thresholds, escalation policy and worker periods.
type Config struct {
	TradingEnabled bool
	DryRun         bool

	MaxAbsolutePositionSOL float64
	MinPositionSOL         float64
	MaxConcurrentPositions int
	ReserveSOL             float64

	SlippagePct float64

	StopLossPct   float64
	TakeProfitPct float64
	MaxHoldHours  float64
	MaxILPct      float64

	MinLiquidityUSD    float64
	MinVolumeTVLRatio  float64
	MinAPR24h          float64
	MinBurnPct         float64

	MaxScore            float64
	MaxTop10HolderPct   float64
	MaxSingleHolderPct  float64
	MinTokenHolders     int

	MinSafeLPPct          float64
	MaxSingleLPHolderPct  float64

	CooldownTiers             []time.Duration
	PermanentBlacklistStrikes int

	PositionCheckSec int
	DisplaySec       int
	PoolScanSec      int

	PoolCacheTTLSec int
	FiatCacheTTLSec int
	BackendTimeoutSec int

	WalletKeystorePath string
	RPCURL             string
	PrimaryPriceAPIKey string

	StateFilePath     string
	TradeLogPath      string
	TelegramBotToken  string
	FirebaseCredsFile string
}

// Load reads the process environment (after trying to load a local .env
// file) and returns a fully populated Config. Missing numeric fields fall
// back to the defaults below rather than failing, but a missing wallet
// keystore path or RPC URL is a ConfigError the caller should treat as
// fatal.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found. Relying on system environment variables.")
	}

	cfg := &Config{
		TradingEnabled: getBool("TRADING_ENABLED", false),
		DryRun:         getBool("DRY_RUN", true),

		MaxAbsolutePositionSOL: getFloat("MAX_ABSOLUTE_POSITION_SOL", 5.0),
		MinPositionSOL:         getFloat("MIN_POSITION_SOL", 0.1),
		MaxConcurrentPositions: getInt("MAX_CONCURRENT_POSITIONS", 10),
		ReserveSOL:             getFloat("RESERVE_SOL", 0.5),

		SlippagePct: getFloat("SLIPPAGE_PCT", 1.0),

		StopLossPct:   getFloat("STOP_LOSS_PCT", -15.0),
		TakeProfitPct: getFloat("TAKE_PROFIT_PCT", 30.0),
		MaxHoldHours:  getFloat("MAX_HOLD_HOURS", 24.0),
		MaxILPct:      getFloat("MAX_IL_PCT", -10.0),

		MinLiquidityUSD:   getFloat("MIN_LIQUIDITY_USD", 10000),
		MinVolumeTVLRatio: getFloat("MIN_VOLUME_TVL_RATIO", 0.1),
		MinAPR24h:         getFloat("MIN_APR_24H", 5.0),
		MinBurnPct:        getFloat("MIN_BURN_PCT", 50.0),

		MaxScore:           getFloat("MAX_SCORE", 60.0),
		MaxTop10HolderPct:  getFloat("MAX_TOP10_HOLDER_PCT", 50.0),
		MaxSingleHolderPct: getFloat("MAX_SINGLE_HOLDER_PCT", 20.0),
		MinTokenHolders:    getInt("MIN_TOKEN_HOLDERS", 50),

		MinSafeLPPct:         getFloat("MIN_SAFE_LP_PCT", 50.0),
		MaxSingleLPHolderPct: getFloat("MAX_SINGLE_LP_HOLDER_PCT", 25.0),

		CooldownTiers:             getDurationList("COOLDOWN_TIERS", []time.Duration{24 * time.Hour, 48 * time.Hour}),
		PermanentBlacklistStrikes: getInt("PERMANENT_BLACKLIST_STRIKES", 3),

		PositionCheckSec: getInt("POSITION_CHECK_SEC", 1),
		DisplaySec:       getInt("DISPLAY_SEC", 4),
		PoolScanSec:      getInt("POOL_SCAN_SEC", 180),

		PoolCacheTTLSec:   getInt("POOL_CACHE_TTL_SEC", 60),
		FiatCacheTTLSec:   getInt("FIAT_CACHE_TTL_SEC", 60),
		BackendTimeoutSec: getInt("BACKEND_TIMEOUT_SEC", 60),

		WalletKeystorePath: os.Getenv("WALLET_KEYSTORE_PATH"),
		RPCURL:             os.Getenv("RPC_URL"),
		PrimaryPriceAPIKey: os.Getenv("PRIMARY_PRICE_API_KEY"),

		StateFilePath:     getString("STATE_FILE_PATH", "state/app_state.json"),
		TradeLogPath:      getString("TRADE_LOG_PATH", "state/trades.log"),
		TelegramBotToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		FirebaseCredsFile: getString("FIREBASE_CREDS_FILE", "serviceAccountKey.json"),
	}

	if cfg.WalletKeystorePath == "" {
		return nil, &errs.ConfigError{Field: "WALLET_KEYSTORE_PATH", Err: fmt.Errorf("is required")}
	}
	if cfg.RPCURL == "" {
		return nil, &errs.ConfigError{Field: "RPC_URL", Err: fmt.Errorf("is required")}
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

// getDurationList parses a comma-separated list of second counts, e.g.
// "86400,172800", into a Duration slice. An empty or unparsable entry
// falls back to the whole default list rather than a partial one.
func getDurationList(key string, def []time.Duration) []time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		secs, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return def
		}
		out = append(out, time.Duration(secs)*time.Second)
	}
	if len(out) == 0 {
		return def
	}
	return out
}
