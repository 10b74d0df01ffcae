// Package scoring implements the Scorer: a weighted five-factor
// score over admitted pools, used to rank candidates and size positions.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"

	"lp-agent/internal/types"
)

const (
	weightAPR    = 0.35
	weightVolTVL = 0.20
	weightLiq    = 0.20
	weightIL     = 0.10
	weightBurn   = 0.15

	aprLogCap    = 200.0  // APR% above which the log-style cap saturates near 100
	volTVLCap    = 2.0
	liqTVLRefUSD = 1_000_000.0
)

// VolatilityHistory supplies the IL-safety proxy — price-ratio volatility
// observed by the oracle's snapshot history. A zero-length history means
// "no data yet," and the proxy falls back to neutral.
type VolatilityHistory interface {
	// StdDevPct returns the standard deviation of recent price-ratio
	// percent changes for poolID, or ok=false if no history exists.
	StdDevPct(poolID string) (stdDev float64, ok bool)
}

// Sizing carries the position-sizing inputs from configuration.
type Sizing struct {
	MinPositionSOL         float64
	MaxAbsolutePositionSOL float64
	ReserveSOL             float64
	TVLRefUSD              float64
}

// Scorer ranks and sizes admitted pools.
type Scorer struct {
	history VolatilityHistory
	sizing  Sizing
}

// New builds a Scorer.
func New(history VolatilityHistory, sizing Sizing) *Scorer {
	if sizing.TVLRefUSD == 0 {
		sizing.TVLRefUSD = liqTVLRefUSD
	}
	return &Scorer{history: history, sizing: sizing}
}

// Score computes the weighted score and sized amount for an admitted pool.
// deployableSOL is the wallet's available SOL after holding back the
// configured reserve.
func (s *Scorer) Score(pool types.Pool, deployableSOL float64) types.Score {
	components := types.ScoreComponents{
		APR:    aprFactor(pool.APR24hPct),
		VolTVL: volTVLFactor(pool.Volume24hUSD, pool.TVLUSD),
		Liq:    liqFactor(pool.TVLUSD),
		IL:     s.ilFactor(pool.PoolID),
		Burn:   burnFactor(pool.BurnPct),
	}

	value := weightAPR*components.APR +
		weightVolTVL*components.VolTVL +
		weightLiq*components.Liq +
		weightIL*components.IL +
		weightBurn*components.Burn

	value = clamp(value, 0, 100)

	poolFactor := math.Min(1, pool.TVLUSD/s.sizing.TVLRefUSD)
	baseSOL := deployableSOL
	sizedSOL := baseSOL * (value / 100) * poolFactor
	sizedSOL = clamp(sizedSOL, s.sizing.MinPositionSOL, s.sizing.MaxAbsolutePositionSOL)

	return types.Score{
		PoolID:         pool.PoolID,
		Value:          value,
		Components:     components,
		SizedAmountSOL: decimal.NewFromFloat(sizedSOL),
	}
}

// aprFactor maps APR% into [0,100] with a log-style saturating cap so a
// freak 10,000% APR pool doesn't dominate the score the way a linear map
// would.
func aprFactor(aprPct float64) float64 {
	if aprPct <= 0 {
		return 0
	}
	scaled := math.Log1p(aprPct) / math.Log1p(aprLogCap)
	return clamp(scaled*100, 0, 100)
}

// volTVLFactor maps the 24h-volume/TVL ratio into [0,100], saturating at
// volTVLCap (a pool turning over 2x its TVL daily is already maximally
// liquid for scoring purposes).
func volTVLFactor(volume24h, tvl float64) float64 {
	if tvl <= 0 {
		return 0
	}
	ratio := volume24h / tvl
	return clamp((ratio/volTVLCap)*100, 0, 100)
}

// liqFactor maps raw TVL into [0,100], saturating at $1M.
func liqFactor(tvlUSD float64) float64 {
	return clamp((tvlUSD/liqTVLRefUSD)*100, 0, 100)
}

// burnFactor is linear in burn_pct — already a [0,100] value.
func burnFactor(burnPct float64) float64 {
	return clamp(burnPct, 0, 100)
}

// ilFactor derives an IL-safety proxy from recent price-ratio volatility:
// lower volatility -> higher safety score. No history yet -> neutral 50.
func (s *Scorer) ilFactor(poolID string) float64 {
	if s.history == nil {
		return 50
	}
	stdDev, ok := s.history.StdDevPct(poolID)
	if !ok {
		return 50
	}
	// A standard deviation of 0% maps to 100 (perfectly stable); 20%+
	// maps to 0 (too volatile to trust).
	return clamp(100-(stdDev/20)*100, 0, 100)
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
