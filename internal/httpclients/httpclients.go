// Package httpclients provides concrete, minimal REST clients for three
// external collaborators whose own semantics sit outside this engine but
// which still need a working shape here: the pool listing service
// (pool.Lister), the token-safety scoring service
// (safety.TokenSafetyService), and the fiat-price service
// (oracle.FiatSource). None of the domain libraries elsewhere in this
// module cover generic outbound REST — go-binance, telegram-bot-api and
// firebase all wrap a *specific* API, not a general HTTP client — so
// these three use net/http directly, the same way the dashboard package
// reaches for net/http when no domain library applies.
package httpclients

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"lp-agent/internal/safety"
	"lp-agent/internal/types"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// PoolListingClient implements pool.Lister against a paginated JSON REST
// endpoint.
type PoolListingClient struct {
	baseURL string
	http    *http.Client
}

// NewPoolListingClient builds a client against baseURL (e.g.
// "https://pools.example/api/v1").
func NewPoolListingClient(baseURL string) *PoolListingClient {
	return &PoolListingClient{baseURL: baseURL, http: newHTTPClient()}
}

type poolPageResponse struct {
	Pools   []poolRecord `json:"pools"`
	HasMore bool         `json:"has_more"`
}

type poolRecord struct {
	PoolID        string  `json:"pool_id"`
	LPMint        string  `json:"lp_mint"`
	BaseMint      string  `json:"base_mint"`
	QuoteMint     string  `json:"quote_mint"`
	BaseDecimals  int     `json:"base_decimals"`
	QuoteDecimals int     `json:"quote_decimals"`
	TVLUSD        float64 `json:"tvl_usd"`
	Volume24hUSD  float64 `json:"volume_24h_usd"`
	APR24hPct     float64 `json:"apr_24h_pct"`
	BurnPct       float64 `json:"burn_pct"`
	FeeTierBps    int     `json:"fee_tier_bps"`
}

// ListPage implements pool.Lister, requesting only WSOL-quoted pools —
// the coarse pre-filter the listing contract requires.
func (c *PoolListingClient) ListPage(ctx context.Context, page, pageSize int) ([]types.Pool, bool, error) {
	url := fmt.Sprintf("%s/pools?wsol_only=true&page=%d&page_size=%d", c.baseURL, page, pageSize)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("pool listing: unexpected status %d", resp.StatusCode)
	}

	var page_ poolPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&page_); err != nil {
		return nil, false, err
	}

	out := make([]types.Pool, len(page_.Pools))
	for i, p := range page_.Pools {
		out[i] = types.Pool{
			PoolID:        p.PoolID,
			LPMint:        p.LPMint,
			BaseMint:      p.BaseMint,
			QuoteMint:     p.QuoteMint,
			BaseDecimals:  p.BaseDecimals,
			QuoteDecimals: p.QuoteDecimals,
			TVLUSD:        p.TVLUSD,
			Volume24hUSD:  p.Volume24hUSD,
			APR24hPct:     p.APR24hPct,
			BurnPct:       p.BurnPct,
			FeeTierBps:    p.FeeTierBps,
		}
	}
	return out, page_.HasMore, nil
}

// TokenSafetyClient implements safety.TokenSafetyService against a
// single-mint-lookup JSON REST endpoint.
type TokenSafetyClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewTokenSafetyClient builds a client against baseURL, attaching apiKey
// as a bearer token when non-empty.
func NewTokenSafetyClient(baseURL, apiKey string) *TokenSafetyClient {
	return &TokenSafetyClient{baseURL: baseURL, apiKey: apiKey, http: newHTTPClient()}
}

// Check implements safety.TokenSafetyService.
func (c *TokenSafetyClient) Check(ctx context.Context, mint string) (safety.TokenSafetyReport, error) {
	url := fmt.Sprintf("%s/tokens/%s/safety", c.baseURL, mint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return safety.TokenSafetyReport{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return safety.TokenSafetyReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return safety.TokenSafetyReport{}, fmt.Errorf("token safety: unexpected status %d", resp.StatusCode)
	}

	var report safety.TokenSafetyReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return safety.TokenSafetyReport{}, err
	}
	return report, nil
}

// FiatPriceClient implements oracle.FiatSource against a single-value
// JSON REST endpoint returning a USD-per-SOL quote as a decimal string,
// parsed into a big.Rat to stay exact until the oracle's own display
// boundary.
type FiatPriceClient struct {
	url    string
	apiKey string
	http   *http.Client
}

// NewFiatPriceClient builds a client against a fixed quote url.
func NewFiatPriceClient(url, apiKey string) *FiatPriceClient {
	return &FiatPriceClient{url: url, apiKey: apiKey, http: newHTTPClient()}
}

type fiatQuoteResponse struct {
	USDPerSOL string `json:"usd_per_sol"`
}

// USDPerSOL implements oracle.FiatSource.
func (c *FiatPriceClient) USDPerSOL(ctx context.Context) (*big.Rat, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fiat price: unexpected status %d", resp.StatusCode)
	}

	var quote fiatQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, err
	}

	rate, ok := new(big.Rat).SetString(quote.USDPerSOL)
	if !ok {
		return nil, fmt.Errorf("fiat price: malformed quote %q", quote.USDPerSOL)
	}
	return rate, nil
}
