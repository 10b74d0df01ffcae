// Package recovery implements the Recovery Protocol: synchronous
// startup reconciliation that runs once, before any scheduler worker
// starts — unwrap dust, sweep orphan holdings, reconcile restored state
// against chain truth, same as any exchange client does a bootstrap
// sync pass before its first live order goes out.
package recovery

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"lp-agent/internal/backend"
	"lp-agent/internal/blacklist"
	"lp-agent/internal/errs"
	"lp-agent/internal/store"
	"lp-agent/internal/types"
)

// Prompter asks the operator a yes/no question at the end of recovery.
// The concrete implementation (terminal stdin, Telegram approval, ...)
// is an out-of-scope external collaborator.
type Prompter interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Report summarizes what the recovery pass did, for the startup log line
// and for tests.
type Report struct {
	UnwrappedLamports  *big.Int
	OrphansSold        int
	GhostsClosed       int
	AccountsClosed     int
	RentReclaimed      *big.Int
	StateWasCorrupted  bool
	ForceClosedAll     bool
}

// Run executes the six recovery steps and returns a summary. Loading the
// state file (step 5) runs right after the unwrap, ahead of the orphan
// sweep and ghost check that depend on it. Run must complete before the
// scheduler starts; a failing remote step is logged and recovery proceeds
// to the next step rather than aborting, and a corrupted state file is
// backed up and replaced with a fresh state. Only a failure to persist the
// reconciled state is returned as an error.
func Run(ctx context.Context, be backend.Backend, st *store.Store, bl *blacklist.Registry, wsolMint string, prompter Prompter) (Report, error) {
	report := Report{UnwrappedLamports: big.NewInt(0), RentReclaimed: big.NewInt(0)}

	// 1. Unwrap native-wrapped balance back to native asset.
	unwrapped, err := be.UnwrapNative(ctx)
	if err != nil {
		log.Printf("⚠️ recovery: unwrap_native failed: %v", err)
	} else if unwrapped != nil {
		report.UnwrappedLamports = unwrapped
		log.Printf("🔓 recovery: unwrapped %s lamports", unwrapped.String())
	}

	// 5 (loaded early so step 2/3 know which mints correspond to a
	// restored position before deciding what counts as an orphan).
	appState, err := st.Restore()
	if err != nil {
		report.StateWasCorrupted = true
		log.Printf("💥 recovery: state file corrupted or schema mismatch: %v — backing up and starting fresh", err)
		if backupErr := st.BackupCorrupted(); backupErr != nil {
			log.Printf("⚠️ recovery: failed to back up corrupted state: %v", backupErr)
		}
		appState = types.AppState{SchemaVersion: types.SchemaVersion}
	}
	bl.Restore(appState.Cooldowns, appState.Blacklist)

	knownMints := make(map[string]bool, len(appState.OpenPositions))
	for _, p := range appState.OpenPositions {
		if p.PoolID != "" {
			knownMints[p.LPMint] = true
		}
	}

	// 2. Sweep orphan token holdings: anything non-WSOL that doesn't
	// belong to a restored position gets sold back to native.
	holdings, err := be.ListTokens(ctx)
	if err != nil {
		log.Printf("⚠️ recovery: list_tokens failed: %v", err)
	} else {
		for mint, balance := range holdings {
			if mint == wsolMint || balance == nil || balance.Sign() == 0 {
				continue
			}
			if knownMints[mint] {
				continue
			}
			// The pool identifier for a sell-all-for-native swap against an
			// orphan holding is the mint itself — the backend resolves the
			// WSOL-quoted pool for that mint internally.
			if _, err := be.Swap(ctx, mint, nil, defaultRecoverySlippagePct, backend.Sell); err != nil {
				log.Printf("⚠️ recovery: failed to sell orphan holding %s: %v", mint, err)
				continue
			}
			report.OrphansSold++
			log.Printf("🧹 recovery: sold orphan holding %s", mint)
		}
	}

	// 3. Detect ghost positions among restored state: zero LP balance
	// means the position is already gone on-chain and must be closed
	// as GHOST without attempting a sell.
	var survivors []types.Position
	if len(appState.OpenPositions) > 0 {
		keys := make([]backend.PoolLPKey, len(appState.OpenPositions))
		for i, p := range appState.OpenPositions {
			keys[i] = backend.PoolLPKey{PoolID: p.PoolID, LPMint: p.LPMint}
		}
		values, err := be.LPValueBatch(ctx, keys)
		if err != nil {
			log.Printf("⚠️ recovery: lp_value_batch failed during reconciliation: %v — restoring all positions unchecked", err)
			survivors = appState.OpenPositions
		} else {
			for _, p := range appState.OpenPositions {
				v, ok := values[p.PoolID]
				if !ok || v.LPBalanceRaw == nil || v.LPBalanceRaw.Sign() == 0 {
					report.GhostsClosed++
					bl.RecordClose(p.PoolID, types.ExitGhost, appState.LastSavedAt)
					log.Printf("👻 recovery: closing %s as GHOST (zero lp balance on restart)", p.PoolID)
					continue
				}
				survivors = append(survivors, p)
			}
		}
	}
	st.ReplaceOpen(survivors)

	// 4. Close empty token accounts, keeping only currently held mints.
	keep := make([]string, 0, len(survivors)+1)
	keep = append(keep, wsolMint)
	for _, p := range survivors {
		keep = append(keep, p.LPMint)
	}
	closed, rent, err := be.CloseEmptyAccounts(ctx, keep)
	if err != nil {
		log.Printf("⚠️ recovery: close_empty_accounts failed: %v", err)
	} else {
		report.AccountsClosed = closed
		if rent != nil {
			report.RentReclaimed = rent
		}
	}

	// 6. Ask the operator whether to keep tracking or force-close.
	if prompter != nil && len(survivors) > 0 {
		keepTracking, err := prompter.Confirm(ctx, fmt.Sprintf("%d position(s) restored from disk. Continue tracking them?", len(survivors)))
		if err != nil {
			log.Printf("⚠️ recovery: operator prompt failed, defaulting to continue tracking: %v", err)
		} else if !keepTracking {
			forceCloseAll(ctx, be, st, bl, survivors)
			report.ForceClosedAll = true
		}
	}

	if err := st.Persist(bl.Snapshot()); err != nil {
		return report, fmt.Errorf("recovery: failed to persist reconciled state: %w", err)
	}
	return report, nil
}

const defaultRecoverySlippagePct = 5.0

func forceCloseAll(ctx context.Context, be backend.Backend, st *store.Store, bl *blacklist.Registry, positions []types.Position) {
	for _, p := range positions {
		_, err := be.RemoveLiquidity(ctx, p.PoolID, defaultRecoverySlippagePct)
		if err != nil {
			var execErr *errs.BackendExecError
			if as, ok := err.(*errs.BackendExecError); ok {
				execErr = as
				log.Printf("⚠️ recovery: force-close exec error for %s: %v", p.PoolID, execErr)
			} else {
				log.Printf("⚠️ recovery: force-close failed for %s: %v", p.PoolID, err)
			}
			continue
		}
		trade := types.ClosedTrade{
			Position:   p,
			ExitReason: types.ExitManual,
		}
		if err := st.Close(p.PositionID, trade); err != nil {
			log.Printf("⚠️ recovery: failed to record force-close for %s: %v", p.PoolID, err)
			continue
		}
		bl.RecordClose(p.PoolID, types.ExitManual, time.Now().UTC())
		log.Printf("🛑 recovery: force-closed %s at operator's request", p.PoolID)
	}
}
