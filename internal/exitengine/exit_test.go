package exitengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"lp-agent/internal/types"
)

func baseThresholds() Thresholds {
	return Thresholds{
		StopLossPct:   -10,
		TakeProfitPct: 20,
		MaxILPct:      -5,
		MaxHold:       2 * time.Hour,
	}
}

func TestEvaluateGhostBeatsEverything(t *testing.T) {
	pos := types.Position{
		LastPnLPct: 50, // would otherwise be TAKE_PROFIT
		OpenedAt:   time.Now().Add(-3 * time.Hour),
	}
	d := Evaluate(pos, true, time.Now(), baseThresholds())
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitGhost, d.Reason)
}

func TestEvaluateStopLossTriggersAtThreshold(t *testing.T) {
	pos := types.Position{LastPnLPct: -10, LastILPct: 0, OpenedAt: time.Now()}
	d := Evaluate(pos, false, time.Now(), baseThresholds())
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitStopLoss, d.Reason)
}

func TestEvaluateTakeProfit(t *testing.T) {
	pos := types.Position{LastPnLPct: 25, LastILPct: 0, OpenedAt: time.Now()}
	d := Evaluate(pos, false, time.Now(), baseThresholds())
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitTakeProfit, d.Reason)
}

func TestEvaluateImpermanentLoss(t *testing.T) {
	pos := types.Position{LastPnLPct: 0, LastILPct: -6, OpenedAt: time.Now()}
	d := Evaluate(pos, false, time.Now(), baseThresholds())
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitIL, d.Reason)
}

func TestEvaluateMaxHoldTime(t *testing.T) {
	pos := types.Position{LastPnLPct: 0, LastILPct: 0, OpenedAt: time.Now().Add(-3 * time.Hour)}
	d := Evaluate(pos, false, time.Now(), baseThresholds())
	assert.True(t, d.Exit)
	assert.Equal(t, types.ExitTime, d.Reason)
}

func TestEvaluateHoldsWithinAllBands(t *testing.T) {
	pos := types.Position{LastPnLPct: 5, LastILPct: -1, OpenedAt: time.Now()}
	d := Evaluate(pos, false, time.Now(), baseThresholds())
	assert.Equal(t, Hold, d)
}

func TestPnLPctZeroEntryIsZero(t *testing.T) {
	assert.Equal(t, float64(0), PnLPct(10, 0))
}

func TestPnLPctComputesPercentDelta(t *testing.T) {
	assert.InDelta(t, 50.0, PnLPct(1.5, 1.0), 0.0001)
	assert.InDelta(t, -50.0, PnLPct(0.5, 1.0), 0.0001)
}

func TestILPctZeroAtUnchangedPrice(t *testing.T) {
	assert.InDelta(t, 0, ILPct(1, 1), 0.0001)
}

func TestILPctNegativeOnPriceDivergence(t *testing.T) {
	il := ILPct(1, 4)
	assert.Less(t, il, 0.0)
}

func TestILPctZeroEntryRatioIsZero(t *testing.T) {
	assert.Equal(t, float64(0), ILPct(0, 1))
}
