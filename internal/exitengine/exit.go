// Package exitengine implements the Exit Evaluator: five first-wins
// exit predicates over a freshly-updated Position, in the fixed priority
// order GHOST > STOP_LOSS > TAKE_PROFIT > IL > TIME.
package exitengine

import (
	"math"
	"time"

	"lp-agent/internal/types"
)

// Decision is the evaluator's verdict for one position on one tick.
type Decision struct {
	Exit   bool
	Reason types.ExitReason
}

// Hold is the zero-value no-exit decision.
var Hold = Decision{}

// Thresholds carries the configured exit trigger levels.
type Thresholds struct {
	StopLossPct   float64
	TakeProfitPct float64
	MaxILPct      float64
	MaxHold       time.Duration
}

// Evaluate runs the five predicates in fixed priority order and returns
// the first match. lpBalanceRawIsZero reports whether the latest on-chain
// LP balance for the position is zero — a zero balance is GHOST regardless
// of every other metric.
func Evaluate(pos types.Position, lpBalanceRawIsZero bool, now time.Time, th Thresholds) Decision {
	if lpBalanceRawIsZero {
		return Decision{Exit: true, Reason: types.ExitGhost}
	}
	if pos.LastPnLPct <= th.StopLossPct {
		return Decision{Exit: true, Reason: types.ExitStopLoss}
	}
	if pos.LastPnLPct >= th.TakeProfitPct {
		return Decision{Exit: true, Reason: types.ExitTakeProfit}
	}
	if pos.LastILPct <= th.MaxILPct {
		return Decision{Exit: true, Reason: types.ExitIL}
	}
	if now.Sub(pos.OpenedAt) >= th.MaxHold {
		return Decision{Exit: true, Reason: types.ExitTime}
	}
	return Hold
}

// PnLPct computes 100*(lastValueSOL - entryAmountSOL)/entryAmountSOL.
// Callers pass float64 here deliberately — P&L percent is a display/
// decision-threshold quantity, not an on-chain integer, so it is exempt
// from the arbitrary-precision requirement that governs reserves and LP
// units.
func PnLPct(lastValueSOL, entryAmountSOL float64) float64 {
	if entryAmountSOL == 0 {
		return 0
	}
	return 100 * (lastValueSOL - entryAmountSOL) / entryAmountSOL
}

// ILPct computes the closed-form constant-product impermanent-loss
// percentage: IL = 2*sqrt(r)/(1+r) - 1, where r = last/entry price ratio.
// IL is always <= 0 by construction; more negative means more loss.
func ILPct(entryPriceRatio, lastPriceRatio float64) float64 {
	if entryPriceRatio == 0 {
		return 0
	}
	r := lastPriceRatio / entryPriceRatio
	if r <= 0 {
		return 0
	}
	il := 2*math.Sqrt(r)/(1+r) - 1
	return il * 100
}
