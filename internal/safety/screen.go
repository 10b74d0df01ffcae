// Package safety implements the Safety Screen: three sequential
// rug-pull filters, any one of which hard-rejects a pool before any
// capital can move. Reject fast, log the reason, move on.
package safety

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"lp-agent/internal/backend"
	"lp-agent/internal/types"
)

// TokenSafetyReport is the external token-safety service's response shape
// for the non-WSOL mint.
type TokenSafetyReport struct {
	NormalizedScore       float64    `json:"normalized_score"`
	RiskList              []RiskItem `json:"risk_list"`
	Top10ConcentrationPct float64    `json:"top10_concentration_pct"`
	MaxSingleHolderPct    float64    `json:"max_single_holder_pct"`
	HasFreezeAuthority    bool       `json:"has_freeze_authority"`
	HasMintAuthority      bool       `json:"has_mint_authority"`
	HolderCount           int        `json:"holder_count"`
}

// RiskItem is one flagged concern from the token-safety service.
type RiskItem struct {
	Severity string `json:"severity"` // e.g. "DANGER", "WARNING"
	Reason   string `json:"reason"`
}

// TokenSafetyService is the external token-safety scoring collaborator.
type TokenSafetyService interface {
	Check(ctx context.Context, mint string) (TokenSafetyReport, error)
}

// HolderClass classifies an LP holder address for the LP-lock layer.
type HolderClass string

const (
	Burned          HolderClass = "BURNED"
	ProtocolLocked  HolderClass = "PROTOCOL_LOCKED"
	ContractLocked  HolderClass = "CONTRACT_LOCKED"
	Unlocked        HolderClass = "UNLOCKED"
)

// Registry classifies static known-safe addresses: incinerator sinks, the
// AMM's own authority-derived address, and known time-lock programs.
type Registry struct {
	BurnAddresses     map[string]bool
	ProtocolAddresses map[string]bool
	TimeLockPrograms  map[string]bool
}

func (r Registry) Classify(address string) HolderClass {
	if r.BurnAddresses[address] {
		return Burned
	}
	if r.ProtocolAddresses[address] {
		return ProtocolLocked
	}
	if r.TimeLockPrograms[address] {
		return ContractLocked
	}
	return Unlocked
}

// Thresholds carries the configuration values the screen checks against.
type Thresholds struct {
	MinBurnPct           float64
	MinSafeLPPct         float64
	MaxSingleLPHolderPct float64
	MaxScore             float64
	MaxTop10HolderPct    float64
	MaxSingleHolderPct   float64
	MinTokenHolders      int
}

// Screen applies the three admission layers in order.
type Screen struct {
	be         backend.Backend
	tokenSvc   TokenSafetyService
	registry   Registry
	thresholds Thresholds
	wsolMint   string
}

// New builds a Screen.
func New(be backend.Backend, tokenSvc TokenSafetyService, registry Registry, thresholds Thresholds, wsolMint string) *Screen {
	return &Screen{be: be, tokenSvc: tokenSvc, registry: registry, thresholds: thresholds, wsolMint: wsolMint}
}

// Evaluate runs the burn, LP-lock and token-safety layers in order,
// short-circuiting on the first hard rejection.
func (s *Screen) Evaluate(ctx context.Context, pool types.Pool) types.SafetyReport {
	report := types.SafetyReport{}

	// 1. Burn layer.
	if pool.BurnPct < s.thresholds.MinBurnPct {
		reason := fmt.Sprintf("burn %.1f%% < minimum %.1f%%", pool.BurnPct, s.thresholds.MinBurnPct)
		log.Printf("❌ SAFETY SCREEN: %s rejected at burn layer: %s", pool.PoolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return report
	}
	report.BurnOK = true

	// 2. LP-lock layer.
	holders, supply, err := s.be.TopLPHolders(ctx, pool.LPMint, 20)
	if err != nil {
		reason := fmt.Sprintf("lp-lock lookup failed: %v", err)
		log.Printf("❌ SAFETY SCREEN: %s rejected at lp-lock layer: %s", pool.PoolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return report
	}
	if !s.evaluateLPLock(pool.PoolID, holders, supply, &report) {
		return report
	}
	report.LPLockOK = true

	// 3. Token-safety layer.
	nonWSOL := pool.NonWSOLMint(s.wsolMint)
	tokenReport, err := s.tokenSvc.Check(ctx, nonWSOL)
	if err != nil {
		reason := fmt.Sprintf("token-safety lookup failed: %v", err)
		log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", pool.PoolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return report
	}
	if !s.evaluateTokenSafety(pool.PoolID, tokenReport, &report) {
		return report
	}
	report.TokenOK = true

	return report
}

func (s *Screen) evaluateLPLock(poolID string, holders []backend.LPHolder, supply *big.Int, report *types.SafetyReport) bool {
	if supply == nil || supply.Sign() == 0 {
		report.Reasons = append(report.Reasons, "lp supply is zero")
		return false
	}

	safe := new(big.Int)
	var maxUnlockedPct float64
	supplyF := new(big.Rat).SetInt(supply)

	for _, h := range holders {
		class := s.registry.Classify(h.Address)
		switch class {
		case Burned, ProtocolLocked, ContractLocked:
			safe.Add(safe, h.Balance)
		case Unlocked:
			pctRat := new(big.Rat).Quo(new(big.Rat).SetInt(h.Balance), supplyF)
			pct, _ := pctRat.Float64()
			pct *= 100
			if pct > maxUnlockedPct {
				maxUnlockedPct = pct
			}
		}
	}

	safePctRat := new(big.Rat).Quo(new(big.Rat).SetInt(safe), supplyF)
	safePct, _ := safePctRat.Float64()
	safePct *= 100

	if safePct < s.thresholds.MinSafeLPPct {
		reason := fmt.Sprintf("safe lp %.1f%% < minimum %.1f%%", safePct, s.thresholds.MinSafeLPPct)
		log.Printf("❌ SAFETY SCREEN: %s rejected at lp-lock layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	if maxUnlockedPct > s.thresholds.MaxSingleLPHolderPct {
		reason := fmt.Sprintf("single unlocked holder %.1f%% > maximum %.1f%%", maxUnlockedPct, s.thresholds.MaxSingleLPHolderPct)
		log.Printf("❌ SAFETY SCREEN: %s rejected at lp-lock layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	return true
}

func (s *Screen) evaluateTokenSafety(poolID string, r TokenSafetyReport, report *types.SafetyReport) bool {
	if r.NormalizedScore > s.thresholds.MaxScore {
		reason := fmt.Sprintf("token score %.1f > maximum %.1f", r.NormalizedScore, s.thresholds.MaxScore)
		log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	for _, item := range r.RiskList {
		if item.Severity == "DANGER" {
			reason := fmt.Sprintf("danger flag: %s", item.Reason)
			log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", poolID, reason)
			report.Reasons = append(report.Reasons, reason)
			return false
		}
	}
	if r.Top10ConcentrationPct > s.thresholds.MaxTop10HolderPct {
		reason := fmt.Sprintf("top10 concentration %.1f%% > maximum %.1f%%", r.Top10ConcentrationPct, s.thresholds.MaxTop10HolderPct)
		log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	if r.MaxSingleHolderPct > s.thresholds.MaxSingleHolderPct {
		reason := fmt.Sprintf("single holder %.1f%% > maximum %.1f%%", r.MaxSingleHolderPct, s.thresholds.MaxSingleHolderPct)
		log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	if r.HasFreezeAuthority || r.HasMintAuthority {
		reason := "freeze or mint authority present"
		log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	if s.thresholds.MinTokenHolders > 0 && r.HolderCount < s.thresholds.MinTokenHolders {
		reason := fmt.Sprintf("holder count %d < minimum %d", r.HolderCount, s.thresholds.MinTokenHolders)
		log.Printf("❌ SAFETY SCREEN: %s rejected at token-safety layer: %s", poolID, reason)
		report.Reasons = append(report.Reasons, reason)
		return false
	}
	return true
}
