package httpclients

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp-agent/internal/safety"
)

func TestPoolListingClientListPageDecodesAndPassesThroughHasMore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("wsol_only"))
		_ = json.NewEncoder(w).Encode(poolPageResponse{
			Pools: []poolRecord{
				{PoolID: "pool1", LPMint: "lp1", BaseMint: "base1", QuoteMint: "WSOL", TVLUSD: 1000},
			},
			HasMore: true,
		})
	}))
	defer srv.Close()

	c := NewPoolListingClient(srv.URL)
	pools, hasMore, err := c.ListPage(t.Context(), 1, 50)
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, pools, 1)
	assert.Equal(t, "pool1", pools[0].PoolID)
	assert.Equal(t, 1000.0, pools[0].TVLUSD)
}

func TestPoolListingClientListPageErrorsOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewPoolListingClient(srv.URL)
	_, _, err := c.ListPage(t.Context(), 1, 50)
	assert.Error(t, err)
}

func TestTokenSafetyClientCheckAttachesBearerTokenAndDecodesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(safety.TokenSafetyReport{HasMintAuthority: true, HasFreezeAuthority: true})
	}))
	defer srv.Close()

	c := NewTokenSafetyClient(srv.URL, "secret-key")
	report, err := c.Check(t.Context(), "mintABC")
	require.NoError(t, err)
	assert.True(t, report.HasMintAuthority)
	assert.True(t, report.HasFreezeAuthority)
}

func TestTokenSafetyClientCheckSkipsAuthHeaderWhenKeyEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(safety.TokenSafetyReport{})
	}))
	defer srv.Close()

	c := NewTokenSafetyClient(srv.URL, "")
	_, err := c.Check(t.Context(), "mintABC")
	require.NoError(t, err)
}

func TestFiatPriceClientUSDPerSOLParsesDecimalString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fiatQuoteResponse{USDPerSOL: "142.50"})
	}))
	defer srv.Close()

	c := NewFiatPriceClient(srv.URL, "")
	rate, err := c.USDPerSOL(t.Context())
	require.NoError(t, err)
	f, _ := rate.Float64()
	assert.InDelta(t, 142.50, f, 0.0001)
}

func TestFiatPriceClientUSDPerSOLErrorsOnMalformedQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(fiatQuoteResponse{USDPerSOL: "not-a-number"})
	}))
	defer srv.Close()

	c := NewFiatPriceClient(srv.URL, "")
	_, err := c.USDPerSOL(t.Context())
	assert.Error(t, err)
}
