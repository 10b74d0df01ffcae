// Package types holds the domain model shared across the engine: pools,
// scores, positions, cooldowns and the serialized application state.
package types

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Pool is an immutable snapshot of one WSOL-quoted AMM pool, valid for the
// scan cycle that produced it.
type Pool struct {
	PoolID       string
	LPMint       string
	BaseMint     string
	QuoteMint    string
	BaseDecimals int
	QuoteDecimals int
	TVLUSD       float64
	Volume24hUSD float64
	APR24hPct    float64
	BurnPct      float64
	FeeTierBps   int
}

// NonWSOLMint returns whichever of base/quote is not wrapped SOL — the side
// actually at risk.
func (p Pool) NonWSOLMint(wsolMint string) string {
	if p.BaseMint == wsolMint {
		return p.QuoteMint
	}
	return p.BaseMint
}

// Reserves carries both sides of a pool's effective reserve in raw integer
// units. Never convert to float except at a display boundary.
type Reserves struct {
	Base  *big.Int
	Quote *big.Int
}

// SafetyReport is the transient result of running a Pool through the three
// admission layers. A single false flips Passed to false.
type SafetyReport struct {
	BurnOK    bool
	LPLockOK  bool
	TokenOK   bool
	Reasons   []string
}

// Passed reports whether the pool cleared every layer.
func (r SafetyReport) Passed() bool {
	return r.BurnOK && r.LPLockOK && r.TokenOK
}

// ScoreComponents is the per-factor breakdown behind a Score.
type ScoreComponents struct {
	APR    float64
	VolTVL float64
	Liq    float64
	IL     float64
	Burn   float64
}

// Score is the transient ranking result for one admitted pool.
type Score struct {
	PoolID         string
	Value          float64
	Components     ScoreComponents
	SizedAmountSOL decimal.Decimal
}

// ExitReason enumerates why a Position was closed.
type ExitReason string

const (
	ExitStopLoss   ExitReason = "STOP_LOSS"
	ExitTakeProfit ExitReason = "TAKE_PROFIT"
	ExitTime       ExitReason = "TIME"
	ExitIL         ExitReason = "IL"
	ExitGhost      ExitReason = "GHOST"
	ExitManual     ExitReason = "MANUAL"
)

// Position is a durable, open liquidity position owned by the position
// store. Fields prefixed Last are refreshed by the position-update worker.
type Position struct {
	PositionID      string
	PoolID          string
	LPMint          string
	EntryPriceRatio float64
	EntryAmountSOL  decimal.Decimal
	EntryLPRaw      *big.Int
	OpenedAt        time.Time
	LastValueSOL    decimal.Decimal
	LastPriceRatio  float64
	LastPnLPct      float64
	LastILPct       float64
	LastUpdatedAt   time.Time
}

// Clone returns a deep-enough copy safe to hand to a goroutine without
// sharing the big.Int pointer with the store's copy.
func (p Position) Clone() Position {
	cp := p
	if p.EntryLPRaw != nil {
		cp.EntryLPRaw = new(big.Int).Set(p.EntryLPRaw)
	}
	return cp
}

// ClosedTrade is an append-only record of a terminated Position.
type ClosedTrade struct {
	Position
	ClosedAt         time.Time
	ExitValueSOL     decimal.Decimal
	RealizedPnLPct   float64
	FeesCollectedSOL decimal.Decimal
	HoldSeconds      int64
	ExitReason       ExitReason
}

// CooldownEntry blocks re-entry into a pool until UntilTS and tracks the
// consecutive stop-loss strikes that drove the escalation.
type CooldownEntry struct {
	PoolID               string
	UntilTS              time.Time
	ConsecutiveSLStrikes int
}

// BlacklistEntry is a permanent ban; once present, it is never removed.
type BlacklistEntry struct {
	PoolID  string
	Reason  string
	SinceTS time.Time
}

// SchemaVersion is the current AppState document version. Bump on any
// incompatible field change; the recovery protocol backs up and starts
// fresh on mismatch rather than guessing a migration.
const SchemaVersion = 1

// AppState is the single serialized root: every durable fact the engine
// remembers between restarts.
type AppState struct {
	SchemaVersion int
	OpenPositions []Position
	Cooldowns     []CooldownEntry
	Blacklist     []BlacklistEntry
	LastSavedAt   time.Time
}
