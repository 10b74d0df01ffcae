// Package blacklist implements the Blacklist / Cooldown subsystem:
// per-pool strike counters, an escalating cooldown table, and promotion
// to a permanent ban — a circuit breaker that disables a pool after N
// consecutive losing exits, tracked with a cooldown map and reset on
// any win, adapted to pools instead of trading pairs and to the five
// exit reasons instead of a plain win/loss boolean.
package blacklist

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"lp-agent/internal/types"
)

// Policy carries the escalation configuration.
type Policy struct {
	CooldownTiers             []time.Duration
	PermanentBlacklistStrikes int
}

// Registry tracks cooldowns and permanent bans for every pool the engine
// has ever closed a position on.
type Registry struct {
	mu         sync.RWMutex
	policy     Policy
	cooldowns  map[string]types.CooldownEntry
	blacklist  map[string]types.BlacklistEntry
}

// New builds an empty Registry under policy.
func New(policy Policy) *Registry {
	if len(policy.CooldownTiers) == 0 {
		policy.CooldownTiers = []time.Duration{24 * time.Hour}
	}
	if policy.PermanentBlacklistStrikes <= 0 {
		policy.PermanentBlacklistStrikes = 3
	}
	return &Registry{
		policy:    policy,
		cooldowns: make(map[string]types.CooldownEntry),
		blacklist: make(map[string]types.BlacklistEntry),
	}
}

// Restore rehydrates the registry from a persisted AppState slice pair,
// used by the recovery protocol on startup.
func (r *Registry) Restore(cooldowns []types.CooldownEntry, bans []types.BlacklistEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cooldowns = make(map[string]types.CooldownEntry, len(cooldowns))
	for _, c := range cooldowns {
		r.cooldowns[c.PoolID] = c
	}
	r.blacklist = make(map[string]types.BlacklistEntry, len(bans))
	for _, b := range bans {
		r.blacklist[b.PoolID] = b
	}
}

// Snapshot returns the current cooldowns and permanent bans, for the
// position store's AppState serialization.
func (r *Registry) Snapshot() ([]types.CooldownEntry, []types.BlacklistEntry) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cooldowns := make([]types.CooldownEntry, 0, len(r.cooldowns))
	for _, c := range r.cooldowns {
		cooldowns = append(cooldowns, c)
	}
	bans := make([]types.BlacklistEntry, 0, len(r.blacklist))
	for _, b := range r.blacklist {
		bans = append(bans, b)
	}
	return cooldowns, bans
}

// IsEligible reports whether poolID may be entered at time now: neither
// permanently banned nor still inside an active cooldown window.
func (r *Registry) IsEligible(poolID string, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, banned := r.blacklist[poolID]; banned {
		return false
	}
	if cd, ok := r.cooldowns[poolID]; ok && now.Before(cd.UntilTS) {
		return false
	}
	return true
}

// RecordClose applies the escalation policy for one closed trade's exit
// reason:
//   - TAKE_PROFIT resets strikes to 0 and applies the base cooldown tier.
//   - STOP_LOSS increments strikes and escalates the cooldown tier;
//     reaching the permanent-ban threshold promotes to BlacklistEntry.
//   - IL and TIME leave strikes unchanged and apply the base cooldown.
//   - GHOST is an immediate permanent ban.
func (r *Registry) RecordClose(poolID string, reason types.ExitReason, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if reason == types.ExitGhost {
		r.blacklist[poolID] = types.BlacklistEntry{PoolID: poolID, Reason: "ghost position", SinceTS: now}
		delete(r.cooldowns, poolID)
		log.Warn().Str("pool_id", poolID).Str("reason", "ghost").Msg("pool permanently blacklisted")
		return
	}

	existing := r.cooldowns[poolID]
	strikes := existing.ConsecutiveSLStrikes

	switch reason {
	case types.ExitTakeProfit:
		strikes = 0
	case types.ExitStopLoss:
		strikes++
	}

	var cooldownFor time.Duration
	if reason == types.ExitStopLoss && strikes > 0 {
		idx := strikes - 1
		if idx >= len(r.policy.CooldownTiers) {
			idx = len(r.policy.CooldownTiers) - 1
		}
		cooldownFor = r.policy.CooldownTiers[idx]
	} else {
		cooldownFor = r.policy.CooldownTiers[0]
	}

	r.cooldowns[poolID] = types.CooldownEntry{
		PoolID:               poolID,
		UntilTS:              now.Add(cooldownFor),
		ConsecutiveSLStrikes: strikes,
	}

	log.Info().
		Str("pool_id", poolID).
		Str("exit_reason", string(reason)).
		Int("strikes", strikes).
		Dur("cooldown", cooldownFor).
		Msg("cooldown updated")

	if reason == types.ExitStopLoss && strikes >= r.policy.PermanentBlacklistStrikes {
		r.blacklist[poolID] = types.BlacklistEntry{PoolID: poolID, Reason: "consecutive stop-loss strikes", SinceTS: now}
		delete(r.cooldowns, poolID)
		log.Warn().Str("pool_id", poolID).Int("strikes", strikes).Msg("pool permanently blacklisted")
	}
}
