package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lp-agent/internal/backend"
	"lp-agent/internal/blacklist"
	"lp-agent/internal/config"
	"lp-agent/internal/dashboard"
	"lp-agent/internal/exitengine"
	"lp-agent/internal/httpclients"
	"lp-agent/internal/notify"
	"lp-agent/internal/oracle"
	"lp-agent/internal/pool"
	"lp-agent/internal/recovery"
	"lp-agent/internal/rpctransport"
	"lp-agent/internal/safety"
	"lp-agent/internal/scheduler"
	"lp-agent/internal/scoring"
	"lp-agent/internal/store"
	"lp-agent/internal/walletkey"
)

// wsolMint is the wrapped-native mint address this deployment quotes
// every pool against. Pinned here rather than hardcoded deep in the
// component wiring, same as any single-quote-asset universe belongs at
// the entrypoint rather than scattered through the engine.
const wsolMint = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"

func main() {
	log.Println("🛡️ LP AGENT | liquidity-provision engine starting")
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("💀 config error: %v", err)
	}
	log.Printf("🔧 TRADING_ENABLED=%v DRY_RUN=%v MAX_CONCURRENT_POSITIONS=%d", cfg.TradingEnabled, cfg.DryRun, cfg.MaxConcurrentPositions)

	notifier := notify.NewTelegram()
	if notifier != nil {
		notifier.Notify("🚀 *LP AGENT RESTARTED*\nRecovery protocol running before any worker starts.")
	}
	pusher := notify.NewPush(cfg.FirebaseCredsFile, "lp-agent-alerts")

	_, ks, err := walletkey.Unlock(cfg.WalletKeystorePath, os.Getenv("WALLET_PASSPHRASE"))
	if err != nil {
		log.Fatalf("💀 keystore error: %v", err)
	}
	_ = ks // unlocking verifies the wallet at startup; the signing handle is not passed to the backend

	rpc, err := rpctransport.Dial(cfg.RPCURL)
	if err != nil {
		log.Fatalf("💀 rpc dial error: %v", err)
	}
	defer rpc.Close()

	be := backend.NewClient(rpc, 3, time.Duration(cfg.BackendTimeoutSec)*time.Second)

	directory := pool.New(httpclients.NewPoolListingClient(os.Getenv("POOL_LISTING_URL")), time.Duration(cfg.PoolCacheTTLSec)*time.Second)

	registry := safety.Registry{
		BurnAddresses:     map[string]bool{"0x000000000000000000000000000000000000dEaD": true},
		ProtocolAddresses: map[string]bool{},
		TimeLockPrograms:  map[string]bool{},
	}
	screen := safety.New(be, httpclients.NewTokenSafetyClient(os.Getenv("TOKEN_SAFETY_URL"), os.Getenv("TOKEN_SAFETY_API_KEY")), registry, safety.Thresholds{
		MinBurnPct:           cfg.MinBurnPct,
		MinSafeLPPct:         cfg.MinSafeLPPct,
		MaxSingleLPHolderPct: cfg.MaxSingleLPHolderPct,
		MaxScore:             cfg.MaxScore,
		MaxTop10HolderPct:    cfg.MaxTop10HolderPct,
		MaxSingleHolderPct:   cfg.MaxSingleHolderPct,
		MinTokenHolders:      cfg.MinTokenHolders,
	}, wsolMint)

	scorer := scoring.New(nil, scoring.Sizing{
		MinPositionSOL:         cfg.MinPositionSOL,
		MaxAbsolutePositionSOL: cfg.MaxAbsolutePositionSOL,
		ReserveSOL:             cfg.ReserveSOL,
	})

	primaryFiat := httpclients.NewFiatPriceClient(os.Getenv("PRIMARY_PRICE_URL"), cfg.PrimaryPriceAPIKey)
	fallbackFiat := httpclients.NewFiatPriceClient(os.Getenv("FALLBACK_PRICE_URL"), "")
	orc := oracle.New(be, primaryFiat, fallbackFiat, time.Duration(cfg.FiatCacheTTLSec)*time.Second)

	positions := store.New(cfg.StateFilePath, cfg.TradeLogPath)
	bl := blacklist.New(blacklist.Policy{
		CooldownTiers:             cfg.CooldownTiers,
		PermanentBlacklistStrikes: cfg.PermanentBlacklistStrikes,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var prompter recovery.Prompter
	if notifier != nil {
		prompter = notifier
	}
	report, err := recovery.Run(ctx, be, positions, bl, wsolMint, prompter)
	if err != nil {
		log.Fatalf("💀 recovery protocol failed: %v", err)
	}
	log.Printf("🔧 recovery: unwrapped=%s orphans_sold=%d ghosts_closed=%d accounts_closed=%d corrupted=%v",
		report.UnwrappedLamports, report.OrphansSold, report.GhostsClosed, report.AccountsClosed, report.StateWasCorrupted)

	hub := dashboard.NewHub()
	renderer := &compositeRenderer{
		terminal:    terminalRenderer{},
		broadcaster: dashboard.NewBroadcaster(hub),
	}

	sched := scheduler.New(scheduler.Config{
		DisplayPeriod:          time.Duration(cfg.DisplaySec) * time.Second,
		PositionCheckPeriod:    time.Duration(cfg.PositionCheckSec) * time.Second,
		PoolScanPeriod:         time.Duration(cfg.PoolScanSec) * time.Second,
		MaxConcurrentPositions: cfg.MaxConcurrentPositions,
		SlippagePct:            cfg.SlippagePct,
		WSOLMint:               wsolMint,
		WSOLDecimals:           9,
		ReserveSOL:             cfg.ReserveSOL,
		BackendTimeout:         time.Duration(cfg.BackendTimeoutSec) * time.Second,
		TradingEnabled:         cfg.TradingEnabled,
		DryRun:                 cfg.DryRun,
		MinLiquidityUSD:        cfg.MinLiquidityUSD,
		MinVolumeTVLRatio:      cfg.MinVolumeTVLRatio,
		MinAPR24h:              cfg.MinAPR24h,
		ExitThresholds: exitengine.Thresholds{
			StopLossPct:   cfg.StopLossPct,
			TakeProfitPct: cfg.TakeProfitPct,
			MaxILPct:      cfg.MaxILPct,
			MaxHold:       time.Duration(cfg.MaxHoldHours * float64(time.Hour)),
		},
	}, be, directory, screen, scorer, orc, positions, bl, renderer)

	if pusher != nil {
		pusher.Send(ctx, "LP Agent", "Engine online", nil)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", dashboard.HealthCheck)
	mux.HandleFunc("/ws", hub.HandleWebSocket)
	go func() {
		log.Println("📡 dashboard listening on :8090 (/healthz, /ws)")
		if err := http.ListenAndServe(":8090", mux); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ dashboard server error: %v", err)
		}
	}()

	log.Println("✅ all systems go — scheduler running")
	sched.Run(ctx)
	log.Println("🛑 shutdown complete")
}

// terminalRenderer prints each Display tick as a single log line — no
// TUI library pulled in just for status output.
type terminalRenderer struct{}

func (terminalRenderer) Render(snap scheduler.Snapshot) {
	fmt.Printf("📊 [%s] open=%d last_scan=%s entry_queue=%d\n",
		time.Now().Format("15:04:05"), len(snap.OpenPositions), snap.LastScanAt.Format("15:04:05"), snap.EntryQueueSize)
}

// compositeRenderer fans one Display tick out to both the terminal and
// the websocket dashboard — one snapshot serves both surfaces.
type compositeRenderer struct {
	terminal    scheduler.Renderer
	broadcaster scheduler.Renderer
}

func (c *compositeRenderer) Render(snap scheduler.Snapshot) {
	c.terminal.Render(snap)
	c.broadcaster.Render(snap)
}
