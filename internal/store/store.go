// Package store implements the Position Store: the in-memory set of
// open positions plus closed-trade history, with atomic snapshot/restore
// to durable storage via a write-to-temp-then-rename discipline.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"lp-agent/internal/errs"
	"lp-agent/internal/types"
)

// Store is the single source of truth for open positions and history.
type Store struct {
	mu            sync.Mutex
	stateFilePath string
	tradeLogPath  string

	open []types.Position
}

// New builds a Store writing its snapshot to stateFilePath and appending
// closed trades to tradeLogPath.
func New(stateFilePath, tradeLogPath string) *Store {
	return &Store{stateFilePath: stateFilePath, tradeLogPath: tradeLogPath}
}

// Open adds a new position, enforcing the at-most-one-open-position-per-
// pool_id invariant. Returns InvariantViolation if the pool already has an
// open position.
func (s *Store) Open(pos types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.open {
		if p.PoolID == pos.PoolID {
			return &errs.InvariantViolation{
				Invariant: "at most one open position per pool_id",
				Detail:    fmt.Sprintf("pool %s already has an open position", pos.PoolID),
			}
		}
	}
	if pos.EntryLPRaw == nil || pos.EntryLPRaw.Sign() <= 0 {
		return &errs.InvariantViolation{
			Invariant: "entry_lp_raw > 0",
			Detail:    fmt.Sprintf("pool %s opened with non-positive entry_lp_raw", pos.PoolID),
		}
	}
	s.open = append(s.open, pos)
	return nil
}

// Snapshot returns a copy of every open position, safe for a caller to
// range over without holding the store's lock.
func (s *Store) Snapshot() []types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Position, len(s.open))
	for i, p := range s.open {
		out[i] = p.Clone()
	}
	return out
}

// Metrics is the set of fields the position-update worker refreshes every
// tick after consulting the oracle.
type Metrics struct {
	LastValueSOL   float64
	LastPriceRatio float64
	LastPnLPct     float64
	LastILPct      float64
}

// UpdateMetrics refreshes the Last* fields of one open position by
// position_id. The call is O(1) in spirit — no I/O, no recomputation of
// other positions — even though it walks the (small) open-position slice
// to find its target.
func (s *Store) UpdateMetrics(positionID string, m Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.open {
		if s.open[i].PositionID != positionID {
			continue
		}
		p := &s.open[i]
		p.LastValueSOL = decimal.NewFromFloat(m.LastValueSOL)
		p.LastPriceRatio = m.LastPriceRatio
		p.LastPnLPct = m.LastPnLPct
		p.LastILPct = m.LastILPct
		p.LastUpdatedAt = time.Now().UTC()
		return
	}
}

// Close removes position positionID from the active set and appends a
// ClosedTrade to the history log. The position is removed from the active
// set before this call returns, so no other worker can observe it as
// "open" afterward — the concurrency invariant the exit-dispatch fan-out
// relies on.
func (s *Store) Close(positionID string, trade types.ClosedTrade) error {
	s.mu.Lock()
	idx := -1
	for i, p := range s.open {
		if p.PositionID == positionID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return fmt.Errorf("close: position %s not found among open positions", positionID)
	}
	s.open = append(s.open[:idx], s.open[idx+1:]...)
	s.mu.Unlock()

	return s.appendTrade(trade)
}

func (s *Store) appendTrade(trade types.ClosedTrade) error {
	if s.tradeLogPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.tradeLogPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.tradeLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	line, err := json.Marshal(trade)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	return err
}

// Snapshot serialization

// snapshotDoc mirrors the on-disk AppState document shape.
type snapshotDoc = types.AppState

// Persist serializes the current AppState (open positions plus the
// cooldown/blacklist state handed in by the caller) atomically: write to
// a temp file in the same directory, then rename over the target.
func (s *Store) Persist(cooldowns []types.CooldownEntry, bans []types.BlacklistEntry) error {
	s.mu.Lock()
	open := make([]types.Position, len(s.open))
	copy(open, s.open)
	s.mu.Unlock()

	doc := snapshotDoc{
		SchemaVersion: types.SchemaVersion,
		OpenPositions: open,
		Cooldowns:     cooldowns,
		Blacklist:     bans,
		LastSavedAt:   time.Now().UTC(),
	}

	bs, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.stateFilePath), 0o755); err != nil {
		return err
	}
	tmp := s.stateFilePath + ".tmp"
	if err := os.WriteFile(tmp, bs, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.stateFilePath)
}

// Restore loads AppState from disk. If the file is missing, it returns a
// fresh empty state with no error — the recovery protocol treats "no
// state file yet" as a valid first-run condition, not corruption.
func (s *Store) Restore() (types.AppState, error) {
	bs, err := os.ReadFile(s.stateFilePath)
	if os.IsNotExist(err) {
		return types.AppState{SchemaVersion: types.SchemaVersion}, nil
	}
	if err != nil {
		return types.AppState{}, err
	}

	var doc snapshotDoc
	if err := json.Unmarshal(bs, &doc); err != nil {
		return types.AppState{}, fmt.Errorf("corrupted state file: %w", err)
	}
	if doc.SchemaVersion != types.SchemaVersion {
		return types.AppState{}, fmt.Errorf("schema mismatch: have %d, want %d", doc.SchemaVersion, types.SchemaVersion)
	}

	s.mu.Lock()
	s.open = doc.OpenPositions
	s.mu.Unlock()

	return doc, nil
}

// BackupCorrupted moves an unreadable/mismatched state file aside so the
// engine can start fresh during recovery without losing the evidence.
func (s *Store) BackupCorrupted() error {
	if _, err := os.Stat(s.stateFilePath); os.IsNotExist(err) {
		return nil
	}
	backupPath := fmt.Sprintf("%s.corrupted.%d", s.stateFilePath, time.Now().UTC().Unix())
	return os.Rename(s.stateFilePath, backupPath)
}

// ReplaceOpen overwrites the active set wholesale — used only by the
// recovery protocol after reconciling ghost positions at startup, before
// any worker has started.
func (s *Store) ReplaceOpen(positions []types.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = positions
}
