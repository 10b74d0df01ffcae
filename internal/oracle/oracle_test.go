package oracle

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp-agent/internal/backend"
	"lp-agent/internal/types"
)

func TestEffectiveReservesNetsOutPnlOffset(t *testing.T) {
	rr := backend.RawReserves{
		VaultBase: big.NewInt(1000), OpenOrdersBase: big.NewInt(100), NeedTakePnlBase: big.NewInt(50),
		VaultQuote: big.NewInt(2000), OpenOrdersQuote: big.NewInt(0), NeedTakePnlQuote: big.NewInt(0),
	}
	res := EffectiveReserves(rr)
	assert.Equal(t, int64(1050), res.Base.Int64())
	assert.Equal(t, int64(2000), res.Quote.Int64())
}

func TestEffectiveReservesNeverGoesNegativeFromPnlOffset(t *testing.T) {
	rr := backend.RawReserves{
		VaultBase: big.NewInt(100), OpenOrdersBase: big.NewInt(0), NeedTakePnlBase: big.NewInt(500),
		VaultQuote: big.NewInt(100), OpenOrdersQuote: big.NewInt(0), NeedTakePnlQuote: big.NewInt(0),
	}
	res := EffectiveReserves(rr)
	assert.Equal(t, int64(100), res.Base.Int64())
}

func TestPriceRatioZeroBaseReturnsZero(t *testing.T) {
	res := types.Reserves{Base: big.NewInt(0), Quote: big.NewInt(100)}
	ratio := PriceRatio(res, 9, 9)
	assert.Equal(t, 0, ratio.Sign())
}

func TestPriceRatioComputesQuotePerBaseAcrossDecimals(t *testing.T) {
	// 1 base unit (6 decimals) worth 2 quote units (9 decimals), same
	// natural-unit ratio should come out to 2.
	res := types.Reserves{Base: big.NewInt(1_000_000), Quote: big.NewInt(2_000_000_000)}
	ratio := PriceRatio(res, 6, 9)
	assert.Equal(t, big.NewRat(2, 1), ratio)
}

func TestLPShareZeroCirculatingReturnsZero(t *testing.T) {
	reserves := types.Reserves{Base: big.NewInt(1000), Quote: big.NewInt(2000)}
	shareBase, shareQuote := LPShare(big.NewInt(10), reserves, big.NewInt(0))
	assert.Equal(t, 0, shareBase.Sign())
	assert.Equal(t, 0, shareQuote.Sign())
}

func TestLPShareProportionalToLPRaw(t *testing.T) {
	reserves := types.Reserves{Base: big.NewInt(1000), Quote: big.NewInt(2000)}
	shareBase, shareQuote := LPShare(big.NewInt(100), reserves, big.NewInt(1000))
	assert.Equal(t, big.NewRat(100, 1), shareBase)
	assert.Equal(t, big.NewRat(200, 1), shareQuote)
}

func TestFiatUSDPerSOLUsesCacheWithinTTL(t *testing.T) {
	calls := 0
	primary := &fakeFiatSource{rate: big.NewRat(150, 1), onCall: func() { calls++ }}
	o := New(nil, primary, nil, time.Hour)

	rate1, err := o.FiatUSDPerSOL(context.Background())
	require.NoError(t, err)
	rate2, err := o.FiatUSDPerSOL(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rate1, rate2)
	assert.Equal(t, 1, calls)
}

func TestFiatUSDPerSOLFallsBackOnPrimaryFailure(t *testing.T) {
	primary := &fakeFiatSource{err: errors.New("rate limited")}
	fallback := &fakeFiatSource{rate: big.NewRat(140, 1)}
	o := New(nil, primary, fallback, time.Hour)

	rate, err := o.FiatUSDPerSOL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, big.NewRat(140, 1), rate)
}

func TestFiatUSDPerSOLErrorsWhenBothFail(t *testing.T) {
	primary := &fakeFiatSource{err: errors.New("down")}
	fallback := &fakeFiatSource{err: errors.New("also down")}
	o := New(nil, primary, fallback, time.Hour)

	_, err := o.FiatUSDPerSOL(context.Background())
	assert.Error(t, err)
}

type fakeFiatSource struct {
	rate   *big.Rat
	err    error
	onCall func()
}

func (f *fakeFiatSource) USDPerSOL(ctx context.Context) (*big.Rat, error) {
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.rate, nil
}
