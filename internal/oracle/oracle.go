// Package oracle implements the Reserve/Price Oracle: effective
// reserves, spot price, LP valuation and fiat conversion — all carried in
// arbitrary precision until the final display boundary, per the engine's
// hard 53-bit-overflow requirement.
package oracle

import (
	"context"
	"math/big"
	"sync"
	"time"

	"lp-agent/internal/backend"
	"lp-agent/internal/types"
)

// FiatSource is an external fiat-price collaborator (primary or fallback).
type FiatSource interface {
	USDPerSOL(ctx context.Context) (*big.Rat, error)
}

// Oracle derives prices and LP values from on-chain reserves.
type Oracle struct {
	be            backend.Backend
	primary       FiatSource
	fallback      FiatSource
	fiatCacheTTL  time.Duration

	mu        sync.Mutex
	fiatCache *big.Rat
	fiatAt    time.Time
}

// New builds an Oracle backed by be for on-chain reads and primary/fallback
// for fiat conversion.
func New(be backend.Backend, primary, fallback FiatSource, fiatCacheTTL time.Duration) *Oracle {
	return &Oracle{be: be, primary: primary, fallback: fallback, fiatCacheTTL: fiatCacheTTL}
}

// EffectiveReserves implements the guarded reserve formula: reserve_s =
// vault_s + open_orders_s − need_take_pnl_s, never negative — falling back
// to vault_s + open_orders_s if the pnl offset would exceed it.
func EffectiveReserves(rr backend.RawReserves) types.Reserves {
	base := effectiveSide(rr.VaultBase, rr.OpenOrdersBase, rr.NeedTakePnlBase)
	quote := effectiveSide(rr.VaultQuote, rr.OpenOrdersQuote, rr.NeedTakePnlQuote)
	return types.Reserves{Base: base, Quote: quote}
}

func effectiveSide(vault, openOrders, needTakePnl *big.Int) *big.Int {
	gross := new(big.Int).Add(vault, openOrders)
	net := new(big.Int).Sub(gross, needTakePnl)
	if net.Sign() < 0 {
		return gross
	}
	return net
}

// PriceRatio computes quote-per-base in natural units from effective
// reserves, as a big.Rat to stay exact until display.
func PriceRatio(reserves types.Reserves, baseDecimals, quoteDecimals int) *big.Rat {
	quoteNatural := new(big.Rat).SetFrac(reserves.Quote, pow10(quoteDecimals))
	baseNatural := new(big.Rat).SetFrac(reserves.Base, pow10(baseDecimals))
	if baseNatural.Sign() == 0 {
		return new(big.Rat)
	}
	return new(big.Rat).Quo(quoteNatural, baseNatural)
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// PriceRatioForPool fetches fresh reserves for pool and returns the spot
// price ratio.
func (o *Oracle) PriceRatioForPool(ctx context.Context, pool types.Pool) (*big.Rat, error) {
	rr, err := o.be.Reserves(ctx, pool.PoolID)
	if err != nil {
		return nil, err
	}
	reserves := EffectiveReserves(rr)
	return PriceRatio(reserves, pool.BaseDecimals, pool.QuoteDecimals), nil
}

// LPShare computes the holder's share of both reserve sides, given
// lp_raw and the AMM's internal lp_circulating counter — never the raw
// mint supply, which burned LP tokens make inconsistent.
func LPShare(lpRaw *big.Int, reserves types.Reserves, lpCirculating *big.Int) (shareBase, shareQuote *big.Rat) {
	if lpCirculating.Sign() == 0 {
		return new(big.Rat), new(big.Rat)
	}
	lpRawRat := new(big.Rat).SetInt(lpRaw)
	circRat := new(big.Rat).SetInt(lpCirculating)

	baseRat := new(big.Rat).SetInt(reserves.Base)
	quoteRat := new(big.Rat).SetInt(reserves.Quote)

	shareBase = new(big.Rat).Quo(new(big.Rat).Mul(lpRawRat, baseRat), circRat)
	shareQuote = new(big.Rat).Quo(new(big.Rat).Mul(lpRawRat, quoteRat), circRat)
	return shareBase, shareQuote
}

// LPValueSOL converts an LP holder's share into a SOL-denominated value by
// converting the non-WSOL side at the current pool ratio and summing both
// sides. wsolIsBase tells which side is already SOL-denominated.
func LPValueSOL(shareBase, shareQuote, priceRatio *big.Rat, wsolIsBase bool, baseDecimals, quoteDecimals int) *big.Rat {
	baseNatural := new(big.Rat).Quo(shareBase, new(big.Rat).SetInt(pow10(baseDecimals)))
	quoteNatural := new(big.Rat).Quo(shareQuote, new(big.Rat).SetInt(pow10(quoteDecimals)))

	if wsolIsBase {
		// quote side converts to SOL via priceRatio (quote per base): SOL
		// equiv of quote units = quoteNatural / priceRatio.
		if priceRatio.Sign() == 0 {
			return baseNatural
		}
		quoteInSOL := new(big.Rat).Quo(quoteNatural, priceRatio)
		return new(big.Rat).Add(baseNatural, quoteInSOL)
	}
	// base side converts to SOL via priceRatio (quote per base): SOL
	// equiv of base units = baseNatural * priceRatio.
	baseInSOL := new(big.Rat).Mul(baseNatural, priceRatio)
	return new(big.Rat).Add(quoteNatural, baseInSOL)
}

// LPValueBatch values N positions with a single backend lp_value_batch
// call. The backend's LPValueBatch already returns value_sol/price_ratio/lp_balance
// pre-computed from its own reserve snapshot, so the oracle here is a thin
// pass-through that exists to keep the oracle as the single caller site
// workers depend on, insulating them from backend.Backend's wider surface.
func (o *Oracle) LPValueBatch(ctx context.Context, keys []backend.PoolLPKey) (map[string]backend.LPValue, error) {
	return o.be.LPValueBatch(ctx, keys)
}

// FiatUSDPerSOL returns the cached or freshly fetched USD-per-SOL rate,
// trying primary first and falling back to the secondary source on
// failure or rate-limit, cached for fiatCacheTTL.
func (o *Oracle) FiatUSDPerSOL(ctx context.Context) (*big.Rat, error) {
	o.mu.Lock()
	if o.fiatCache != nil && time.Since(o.fiatAt) < o.fiatCacheTTL {
		cached := o.fiatCache
		o.mu.Unlock()
		return cached, nil
	}
	o.mu.Unlock()

	rate, err := o.primary.USDPerSOL(ctx)
	if err != nil && o.fallback != nil {
		rate, err = o.fallback.USDPerSOL(ctx)
	}
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.fiatCache = rate
	o.fiatAt = time.Now()
	o.mu.Unlock()
	return rate, nil
}
