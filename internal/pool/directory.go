// Package pool implements the Pool Directory: fetching, pagination and
// caching of WSOL-quoted pool records from the external listing service.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lp-agent/internal/types"
)

// Lister is the external collaborator the directory fetches from — the
// REST pool-listing service. It is out of scope for this engine; only the
// shape the directory needs is specified here.
type Lister interface {
	// ListPage fetches one page of WSOL-quoted pools, zero-indexed.
	ListPage(ctx context.Context, page int, pageSize int) ([]types.Pool, bool, error)
}

const maxPages = 50
const defaultPageSize = 20 // cap ≈ 1000 pools total (maxPages * defaultPageSize)

// FetchError is returned when no cache exists and the remote fetch fails.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("pool directory fetch failed: %v", e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// Directory caches the full paginated pool listing for CacheTTL and
// degrades to the last good cache on fetch failure — it must never block
// the scheduler on a down listing service.
type Directory struct {
	lister   Lister
	cacheTTL time.Duration

	mu        sync.Mutex
	cached    []types.Pool
	cachedAt  time.Time
	haveCache bool
}

// New constructs a Directory backed by lister, caching for ttl.
func New(lister Lister, ttl time.Duration) *Directory {
	return &Directory{lister: lister, cacheTTL: ttl}
}

// List returns the full WSOL-quoted pool listing, serving from cache when
// fresh. On a remote failure it falls back to the last cached result; if
// there is no cache yet, it returns FetchError.
func (d *Directory) List(ctx context.Context) ([]types.Pool, error) {
	d.mu.Lock()
	if d.haveCache && time.Since(d.cachedAt) < d.cacheTTL {
		cached := d.cached
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	fresh, err := d.fetchAll(ctx)
	if err != nil {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.haveCache {
			return d.cached, nil
		}
		return nil, &FetchError{Err: err}
	}

	d.mu.Lock()
	d.cached = fresh
	d.cachedAt = time.Now()
	d.haveCache = true
	d.mu.Unlock()

	return fresh, nil
}

func (d *Directory) fetchAll(ctx context.Context) ([]types.Pool, error) {
	var all []types.Pool
	for page := 0; page < maxPages; page++ {
		batch, hasMore, err := d.lister.ListPage(ctx, page, defaultPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if !hasMore || len(all) >= maxPages*defaultPageSize {
			break
		}
	}
	return all, nil
}
