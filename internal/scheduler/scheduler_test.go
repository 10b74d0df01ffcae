package scheduler

import (
	"context"
	"encoding/json"
	"math/big"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp-agent/internal/blacklist"
	"lp-agent/internal/exitengine"
	"lp-agent/internal/store"
	"lp-agent/internal/types"
)

func TestExitThresholdsWireIntoEvaluate(t *testing.T) {
	th := exitengine.Thresholds{
		StopLossPct:   -20,
		TakeProfitPct: 50,
		MaxILPct:      -10,
		MaxHold:       time.Hour,
	}

	pos := types.Position{
		PositionID: "p1",
		PoolID:     "pool1",
		OpenedAt:   time.Now().Add(-2 * time.Hour),
		LastPnLPct: 0,
		LastILPct:  0,
	}

	decision := exitengine.Evaluate(pos, false, time.Now(), th)
	assert.True(t, decision.Exit)
	assert.Equal(t, types.ExitTime, decision.Reason)
}

func TestNewSizesEntryBufferAndStopSignalsWorkers(t *testing.T) {
	cfg := Config{EntryBufferSize: 4}
	s := New(cfg, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.Equal(t, 4, cap(s.entryBuffer))
	assert.False(t, s.stopped())
	s.Stop()
	assert.True(t, s.stopped())
}

func TestCoarsePrefilterRejectsBelowLiquidityFloor(t *testing.T) {
	cfg := Config{MinLiquidityUSD: 10000}
	s := New(cfg, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.False(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p1", TVLUSD: 5000}))
	assert.True(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p2", TVLUSD: 20000}))
}

func TestCoarsePrefilterRejectsBelowVolumeTVLRatio(t *testing.T) {
	cfg := Config{MinVolumeTVLRatio: 0.5}
	s := New(cfg, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.False(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p1", TVLUSD: 1000, Volume24hUSD: 100}))
	assert.True(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p2", TVLUSD: 1000, Volume24hUSD: 600}))
}

func TestCoarsePrefilterRejectsBelowAPRFloor(t *testing.T) {
	cfg := Config{MinAPR24h: 5}
	s := New(cfg, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.False(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p1", APR24hPct: 1}))
	assert.True(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p2", APR24hPct: 9}))
}

func TestCoarsePrefilterDisabledByZeroThresholds(t *testing.T) {
	s := New(Config{}, nil, nil, nil, nil, nil, nil, nil, nil)
	assert.True(t, s.passesCoarsePrefilter(types.Pool{PoolID: "p1"}))
}

func TestExecuteExitForcesZeroValueOnGhost(t *testing.T) {
	dir := t.TempDir()
	positions := store.New(dir+"/state.json", dir+"/trades.log")
	bl := blacklist.New(blacklist.Policy{})

	pos := types.Position{
		PositionID:     "p1",
		PoolID:         "pool1",
		LPMint:         "lp1",
		EntryLPRaw:     big.NewInt(1),
		EntryAmountSOL: decimal.NewFromInt(1),
		OpenedAt:       time.Now(),
	}
	require.NoError(t, positions.Open(pos))

	pos.LastValueSOL = decimal.NewFromFloat(3.5) // stale non-zero value from before the rug
	cfg := Config{DryRun: true}
	s := New(cfg, nil, nil, nil, nil, nil, positions, bl, nil)

	s.executeExit(context.Background(), exitTarget{position: pos, reason: types.ExitGhost})

	assert.Empty(t, positions.Snapshot())

	raw, err := os.ReadFile(dir + "/trades.log")
	require.NoError(t, err)
	var trade types.ClosedTrade
	require.NoError(t, json.Unmarshal(raw, &trade))
	assert.True(t, trade.ExitValueSOL.IsZero())
	assert.Equal(t, types.ExitGhost, trade.ExitReason)
}
