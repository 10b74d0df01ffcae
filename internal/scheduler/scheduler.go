// Package scheduler implements the Scheduler: four cooperating
// workers — display, position-update, pool-scan, entry-worker — at
// different tick rates, sharing state with strict lock-release-before-I/O
// discipline. Exits dispatch into their own goroutine while the lock is
// held only long enough to mutate shared state.
package scheduler

import (
	"context"
	"log"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"lp-agent/internal/backend"
	"lp-agent/internal/blacklist"
	"lp-agent/internal/errs"
	"lp-agent/internal/exitengine"
	"lp-agent/internal/oracle"
	"lp-agent/internal/pool"
	"lp-agent/internal/safety"
	"lp-agent/internal/scoring"
	"lp-agent/internal/store"
	"lp-agent/internal/types"
)

// Renderer draws the periodic Display snapshot. The terminal renderer
// itself is an out-of-scope external collaborator; this is the shape the
// scheduler needs from it.
type Renderer interface {
	Render(snapshot Snapshot)
}

// Snapshot is what the Display worker hands to the renderer every tick.
type Snapshot struct {
	OpenPositions  []types.Position
	LastScanAt     time.Time
	EntryQueueSize int
}

// Config carries the scheduler's tick periods and capacity/sizing bounds.
type Config struct {
	DisplayPeriod        time.Duration
	PositionCheckPeriod  time.Duration
	PoolScanPeriod       time.Duration
	MaxConcurrentPositions int
	SlippagePct          float64
	WSOLMint             string
	WSOLDecimals         int
	ReserveSOL           float64
	EntryBufferSize      int
	BackendTimeout       time.Duration
	ExitThresholds       exitengine.Thresholds
	TradingEnabled       bool
	DryRun               bool

	// MinLiquidityUSD, MinVolumeTVLRatio and MinAPR24h are the coarse
	// pre-filter applied before a pool ever reaches the safety screen —
	// cheap local checks on fields the directory already returned, so
	// obviously-unattractive pools never cost a safety-screen remote call.
	MinLiquidityUSD   float64
	MinVolumeTVLRatio float64
	MinAPR24h         float64
}

// Scheduler owns the four workers and the lock that protects scheduler-
// level coordination state (the entry buffer and last-scan bookkeeping).
// The position store and blacklist registry carry their own internal
// locks and are always read/written with that lock released around any
// backend call, matching the same discipline this scheduler's own mutex
// follows.
type Scheduler struct {
	cfg Config

	be        backend.Backend
	directory *pool.Directory
	screen    *safety.Screen
	scorer    *scoring.Scorer
	oracle    *oracle.Oracle
	positions *store.Store
	blacklist *blacklist.Registry
	renderer  Renderer

	mu         sync.Mutex
	lastScanAt time.Time

	entryBuffer chan types.Score
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New wires the scheduler's dependencies: the pool directory, safety
// screen, scorer, oracle, position store and blacklist registry. The
// scheduler itself only sequences calls into them.
func New(cfg Config, be backend.Backend, directory *pool.Directory, screen *safety.Screen, scorer *scoring.Scorer, orc *oracle.Oracle, positions *store.Store, bl *blacklist.Registry, renderer Renderer) *Scheduler {
	if cfg.EntryBufferSize <= 0 {
		cfg.EntryBufferSize = 32
	}
	return &Scheduler{
		cfg:         cfg,
		be:          be,
		directory:   directory,
		screen:      screen,
		scorer:      scorer,
		oracle:      orc,
		positions:   positions,
		blacklist:   bl,
		renderer:    renderer,
		entryBuffer: make(chan types.Score, cfg.EntryBufferSize),
		stop:        make(chan struct{}),
	}
}

// Run starts all four workers and blocks until ctx is cancelled or Stop
// is called, then waits for every worker to finish its current iteration.
func (s *Scheduler) Run(ctx context.Context) {
	s.wg.Add(4)
	go s.runDisplay(ctx)
	go s.runPositionUpdate(ctx)
	go s.runPoolScan(ctx)
	go s.runEntryWorker(ctx)
	s.wg.Wait()
}

// Stop signals every worker to exit after its current iteration. Open
// positions are NOT auto-closed.
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}

// --- Display worker: never calls the backend. ---

func (s *Scheduler) runDisplay(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.DisplayPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			lastScan := s.lastScanAt
			queueSize := len(s.entryBuffer)
			s.mu.Unlock()

			snap := Snapshot{
				OpenPositions:  s.positions.Snapshot(),
				LastScanAt:     lastScan,
				EntryQueueSize: queueSize,
			}
			if s.renderer != nil {
				s.renderer.Render(snap)
			}
		}
	}
}

// --- Position-update worker: batch valuation, evaluate, dispatch parallel exits. ---

func (s *Scheduler) runPositionUpdate(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PositionCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.tickPositions(ctx)
		}
	}
}

func (s *Scheduler) tickPositions(ctx context.Context) {
	open := s.positions.Snapshot()
	if len(open) == 0 {
		return
	}

	keys := make([]backend.PoolLPKey, len(open))
	for i, p := range open {
		keys[i] = backend.PoolLPKey{PoolID: p.PoolID, LPMint: p.LPMint}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	values, err := s.oracle.LPValueBatch(callCtx, keys)
	cancel()
	if err != nil {
		log.Printf("⚠️ position-update: lp_value_batch failed: %v", err)
		return
	}

	var toExit []exitTarget
	for _, p := range open {
		v, ok := values[p.PoolID]
		if !ok {
			continue
		}

		lastValueSOL, _ := v.ValueSOL.Float64()
		lastPriceRatio, _ := v.PriceRatio.Float64()
		pnlPct := exitengine.PnLPct(lastValueSOL, toFloat(p.EntryAmountSOL))
		ilPct := exitengine.ILPct(p.EntryPriceRatio, lastPriceRatio)

		s.positions.UpdateMetrics(p.PositionID, store.Metrics{
			LastValueSOL:   lastValueSOL,
			LastPriceRatio: lastPriceRatio,
			LastPnLPct:     pnlPct,
			LastILPct:      ilPct,
		})

		updated := p
		updated.LastValueSOL = decimal.NewFromFloat(lastValueSOL)
		updated.LastPriceRatio = lastPriceRatio
		updated.LastPnLPct = pnlPct
		updated.LastILPct = ilPct

		isGhost := v.LPBalanceRaw == nil || v.LPBalanceRaw.Sign() == 0
		decision := exitengine.Evaluate(updated, isGhost, time.Now().UTC(), s.cfg.ExitThresholds)
		if decision.Exit {
			toExit = append(toExit, exitTarget{position: updated, reason: decision.Reason})
		}
	}

	var wg sync.WaitGroup
	for _, target := range toExit {
		wg.Add(1)
		go func(t exitTarget) {
			defer wg.Done()
			s.executeExit(ctx, t)
		}(target)
	}
	wg.Wait()
}

type exitTarget struct {
	position types.Position
	reason   types.ExitReason
}

// executeExit sells the position (unless it is GHOST, which has no
// balance to sell), closes it in the store, and records the blacklist
// update. The position stays in the store's active set while the sell is
// in flight, so the Display worker can still show it as open during that
// time; a failed sell leaves it open. After a successful sell, Close
// removes it before this function returns, so once the exit completes no
// worker observes it as open.
func (s *Scheduler) executeExit(ctx context.Context, t exitTarget) {
	now := time.Now().UTC()
	exitValueSOL := t.position.LastValueSOL
	if t.reason == types.ExitGhost {
		// A ghost position has no on-chain LP balance left to value — the
		// batch read that reported lp_balance_raw=0 may still carry a
		// stale, non-zero value_sol from the prior tick. Spec: GHOST
		// closes with exit_value 0.
		exitValueSOL = decimal.Zero
	}

	if t.reason != types.ExitGhost && s.cfg.TradingEnabled && !s.cfg.DryRun {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
		_, err := s.be.RemoveLiquidity(callCtx, t.position.PoolID, s.cfg.SlippagePct)
		cancel()
		if err != nil {
			var execErr *errs.BackendExecError
			if as, ok := err.(*errs.BackendExecError); ok {
				execErr = as
				log.Printf("⚠️ exit exec error for %s: %v (position remains open)", t.position.PoolID, execErr)
				return
			}
			log.Printf("⚠️ exit failed for %s: %v (position remains open)", t.position.PoolID, err)
			return
		}
	}

	entryAmt, _ := t.position.EntryAmountSOL.Float64()
	exitAmt, _ := exitValueSOL.Float64()
	realizedPnLPct := exitengine.PnLPct(exitAmt, entryAmt)

	trade := types.ClosedTrade{
		Position:         t.position,
		ClosedAt:         now,
		ExitValueSOL:     exitValueSOL,
		RealizedPnLPct:   realizedPnLPct,
		FeesCollectedSOL: decimal.Zero,
		HoldSeconds:      int64(now.Sub(t.position.OpenedAt).Seconds()),
		ExitReason:       t.reason,
	}

	if err := s.positions.Close(t.position.PositionID, trade); err != nil {
		log.Printf("⚠️ failed to close position %s: %v", t.position.PositionID, err)
		return
	}
	s.blacklist.RecordClose(t.position.PoolID, t.reason, now)

	if err := s.positions.Persist(snapshotCooldowns(s.blacklist)); err != nil {
		log.Printf("⚠️ failed to persist state after close: %v", err)
	}
}

func snapshotCooldowns(bl *blacklist.Registry) ([]types.CooldownEntry, []types.BlacklistEntry) {
	return bl.Snapshot()
}

// --- Pool-scan worker: directory -> safety screen -> scorer -> entry buffer. ---

func (s *Scheduler) runPoolScan(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PoolScanPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.scanOnce(ctx)
		}
	}
}

func (s *Scheduler) scanOnce(ctx context.Context) {
	pools, err := s.directory.List(ctx)
	if err != nil {
		log.Printf("⚠️ pool-scan: directory fetch failed: %v", err)
		return
	}

	open := s.positions.Snapshot()
	capacity := s.cfg.MaxConcurrentPositions - len(open)
	if capacity <= 0 {
		s.mu.Lock()
		s.lastScanAt = time.Now().UTC()
		s.mu.Unlock()
		return
	}

	deployable := s.deployableSOL(ctx)

	var admitted []types.Score
	now := time.Now().UTC()
	for _, p := range pools {
		if !s.blacklist.IsEligible(p.PoolID, now) {
			continue
		}
		if !s.passesCoarsePrefilter(p) {
			continue
		}
		report := s.screen.Evaluate(ctx, p)
		if !report.Passed() {
			continue
		}
		sc := s.scorer.Score(p, deployable)
		admitted = append(admitted, sc)
	}

	// Highest score first, so the capacity cut below keeps the top-ranked pools.
	sort.SliceStable(admitted, func(i, j int) bool { return admitted[i].Value > admitted[j].Value })

	for i := 0; i < len(admitted) && i < capacity; i++ {
		select {
		case s.entryBuffer <- admitted[i]:
		default:
			log.Printf("⚠️ entry buffer full, dropping candidate %s", admitted[i].PoolID)
		}
	}

	s.mu.Lock()
	s.lastScanAt = now
	s.mu.Unlock()
}

// passesCoarsePrefilter applies the liquidity/volume/APR floor from config
// §6 directly against the directory's own Pool fields, before the pool ever
// costs a safety-screen remote call. A zero-valued threshold is treated as
// "not configured" and never rejects.
func (s *Scheduler) passesCoarsePrefilter(p types.Pool) bool {
	if s.cfg.MinLiquidityUSD > 0 && p.TVLUSD < s.cfg.MinLiquidityUSD {
		log.Printf("🔎 pool-scan: %s below liquidity floor (%.0f < %.0f)", p.PoolID, p.TVLUSD, s.cfg.MinLiquidityUSD)
		return false
	}
	if s.cfg.MinVolumeTVLRatio > 0 {
		if p.TVLUSD <= 0 || p.Volume24hUSD/p.TVLUSD < s.cfg.MinVolumeTVLRatio {
			log.Printf("🔎 pool-scan: %s below volume/tvl floor", p.PoolID)
			return false
		}
	}
	if s.cfg.MinAPR24h > 0 && p.APR24hPct < s.cfg.MinAPR24h {
		log.Printf("🔎 pool-scan: %s below apr floor (%.1f%% < %.1f%%)", p.PoolID, p.APR24hPct, s.cfg.MinAPR24h)
		return false
	}
	return true
}

// deployableSOL reads the wallet's current WSOL balance and subtracts the
// configured reserve, per the sizing formula's base_sol input. A read
// failure or an exhausted reserve both degrade to 0 rather than erroring
// the whole scan — the pool-scan worker still runs the admission pipeline
// so rejections and scores get logged even with no capital to deploy.
func (s *Scheduler) deployableSOL(ctx context.Context) float64 {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	raw, err := s.be.Balance(callCtx, s.cfg.WSOLMint)
	cancel()
	if err != nil || raw == nil {
		return 0
	}
	decimals := s.cfg.WSOLDecimals
	if decimals <= 0 {
		decimals = 9
	}
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	bal := new(big.Float).Quo(new(big.Float).SetInt(raw), scale)
	balF, _ := bal.Float64()
	deployable := balF - s.cfg.ReserveSOL
	if deployable < 0 {
		return 0
	}
	return deployable
}

// --- Entry-worker: drains the buffer strictly sequentially. ---

func (s *Scheduler) runEntryWorker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case score, ok := <-s.entryBuffer:
			if !ok {
				return
			}
			s.processEntry(ctx, score)
		}
	}
}

func (s *Scheduler) processEntry(ctx context.Context, score types.Score) {
	if !s.cfg.TradingEnabled || s.cfg.DryRun {
		log.Printf("🟢 [DRY RUN] would add liquidity to %s (score %.1f, size %s SOL)", score.PoolID, score.Value, score.SizedAmountSOL.String())
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	result, lpMint, err := s.be.AddLiquidity(callCtx, score.PoolID, s.cfg.SlippagePct)
	cancel()
	if err != nil || !result.Success {
		log.Printf("⚠️ entry-worker: add_liquidity failed for %s: %v", score.PoolID, err)
		return
	}

	pos := types.Position{
		PositionID:     uuid.NewString(),
		PoolID:         score.PoolID,
		LPMint:         lpMint,
		EntryAmountSOL: score.SizedAmountSOL,
		EntryLPRaw:     big.NewInt(1), // placeholder satisfying entry_lp_raw > 0; never updated afterwards — ghost checks read lp_balance_raw from lp_value_batch instead
		OpenedAt:       time.Now().UTC(),
		LastUpdatedAt:  time.Now().UTC(),
	}
	if err := s.positions.Open(pos); err != nil {
		if errs.IsFatal(err) {
			log.Printf("💀 invariant violation opening %s: %v — snapshotting and exiting", score.PoolID, err)
			s.persistOrLog()
			panic(err)
		}
		log.Printf("⚠️ failed to open position for %s: %v", score.PoolID, err)
		return
	}
	if err := s.persistOrLogErr(); err != nil {
		log.Printf("⚠️ failed to persist state after open: %v", err)
	}
}

func (s *Scheduler) persistOrLog() {
	if err := s.persistOrLogErr(); err != nil {
		log.Printf("⚠️ snapshot on fatal path failed: %v", err)
	}
}

func (s *Scheduler) persistOrLogErr() error {
	cooldowns, bans := s.blacklist.Snapshot()
	return s.positions.Persist(cooldowns, bans)
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
