package pool

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lp-agent/internal/types"
)

type fakeLister struct {
	pages [][]types.Pool
	calls int
	err   error
}

func (f *fakeLister) ListPage(ctx context.Context, page int, pageSize int) ([]types.Pool, bool, error) {
	f.calls++
	if f.err != nil {
		return nil, false, f.err
	}
	if page >= len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page], page < len(f.pages)-1, nil
}

func TestListFetchesAllPagesUntilExhausted(t *testing.T) {
	lister := &fakeLister{pages: [][]types.Pool{
		{{PoolID: "p1"}, {PoolID: "p2"}},
		{{PoolID: "p3"}},
	}}
	d := New(lister, time.Minute)
	pools, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, pools, 3)
	assert.Equal(t, 2, lister.calls)
}

func TestListServesFromCacheWithinTTL(t *testing.T) {
	lister := &fakeLister{pages: [][]types.Pool{{{PoolID: "p1"}}}}
	d := New(lister, time.Hour)
	_, err := d.List(context.Background())
	require.NoError(t, err)
	calls := lister.calls

	_, err = d.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, calls, lister.calls)
}

func TestListDegradesToCacheOnFetchFailure(t *testing.T) {
	lister := &fakeLister{pages: [][]types.Pool{{{PoolID: "p1"}}}}
	d := New(lister, -time.Hour) // always stale, forces a refetch attempt
	first, err := d.List(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	lister.err = errors.New("listing service down")
	second, err := d.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListReturnsFetchErrorWithNoCacheAvailable(t *testing.T) {
	lister := &fakeLister{err: errors.New("listing service down")}
	d := New(lister, time.Hour)
	_, err := d.List(context.Background())
	var fe *FetchError
	assert.ErrorAs(t, err, &fe)
}
