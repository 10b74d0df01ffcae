package blacklist

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp-agent/internal/types"
)

func testPolicy() Policy {
	return Policy{
		CooldownTiers:             []time.Duration{time.Hour, 4 * time.Hour, 24 * time.Hour},
		PermanentBlacklistStrikes: 3,
	}
}

func TestNewPoolIsEligibleByDefault(t *testing.T) {
	r := New(testPolicy())
	assert.True(t, r.IsEligible("p1", time.Now()))
}

func TestRecordCloseGhostIsImmediatePermanentBan(t *testing.T) {
	r := New(testPolicy())
	now := time.Now()
	r.RecordClose("p1", types.ExitGhost, now)
	assert.False(t, r.IsEligible("p1", now.Add(100*time.Hour)))
	_, bans := r.Snapshot()
	require.Len(t, bans, 1)
	assert.Equal(t, "p1", bans[0].PoolID)
}

func TestRecordCloseStopLossAppliesCooldownAndEscalates(t *testing.T) {
	r := New(testPolicy())
	now := time.Now()

	r.RecordClose("p1", types.ExitStopLoss, now)
	assert.False(t, r.IsEligible("p1", now.Add(30*time.Minute)))
	assert.True(t, r.IsEligible("p1", now.Add(2*time.Hour)))

	r.RecordClose("p1", types.ExitStopLoss, now)
	assert.False(t, r.IsEligible("p1", now.Add(3*time.Hour)))
	assert.True(t, r.IsEligible("p1", now.Add(5*time.Hour)))
}

func TestRecordCloseStopLossReachesPermanentBanAtThreshold(t *testing.T) {
	r := New(testPolicy())
	now := time.Now()
	r.RecordClose("p1", types.ExitStopLoss, now)
	r.RecordClose("p1", types.ExitStopLoss, now)
	r.RecordClose("p1", types.ExitStopLoss, now)
	assert.False(t, r.IsEligible("p1", now.Add(1000*time.Hour)))
}

func TestRecordCloseTakeProfitResetsStrikesAndAppliesBaseCooldown(t *testing.T) {
	r := New(testPolicy())
	now := time.Now()
	r.RecordClose("p1", types.ExitStopLoss, now)
	r.RecordClose("p1", types.ExitTakeProfit, now)
	cooldowns, _ := r.Snapshot()
	require.Len(t, cooldowns, 1)
	assert.Equal(t, 0, cooldowns[0].ConsecutiveSLStrikes)
	assert.True(t, r.IsEligible("p1", now.Add(2*time.Hour)))
}

func TestRecordCloseILAndTimeApplyBaseCooldownWithoutEscalation(t *testing.T) {
	r := New(testPolicy())
	now := time.Now()
	r.RecordClose("p1", types.ExitIL, now)
	assert.False(t, r.IsEligible("p1", now.Add(30*time.Minute)))
	assert.True(t, r.IsEligible("p1", now.Add(2*time.Hour)))

	r.RecordClose("p2", types.ExitTime, now)
	assert.False(t, r.IsEligible("p2", now.Add(30*time.Minute)))
}

func TestRestoreRehydratesFromPersistedSlices(t *testing.T) {
	r := New(testPolicy())
	now := time.Now()
	r.Restore(
		[]types.CooldownEntry{{PoolID: "p1", UntilTS: now.Add(time.Hour)}},
		[]types.BlacklistEntry{{PoolID: "p2", Reason: "ghost position", SinceTS: now}},
	)
	assert.False(t, r.IsEligible("p1", now.Add(30*time.Minute)))
	assert.False(t, r.IsEligible("p2", now.Add(1000*time.Hour)))
}
