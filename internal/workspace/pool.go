package workspace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// PoolOptions configure handle caching
type PoolOptions struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	BusyTimeout     time.Duration
}

// OpenObserver is notified about pool activity
type OpenObserver interface {
	SetOpenHandles(n int)
}

// Pool caches open database handles by absolute path. Handles idle for
// longer than IdleTTL are closed by the cache janitor.
type Pool struct {
	cache    *cache.Cache
	opts     PoolOptions
	logger   *slog.Logger
	observer OpenObserver

	mu sync.Mutex
}

// NewPool creates a handle pool
func NewPool(opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = time.Minute
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}

	p := &Pool{
		cache:  cache.New(opts.IdleTTL, opts.CleanupInterval),
		opts:   opts,
		logger: logger.With("component", "pool"),
	}
	p.cache.OnEvicted(func(path string, v any) {
		if db, ok := v.(*DB); ok {
			if err := db.Close(); err != nil {
				p.logger.Warn("failed to close database", "path", path, "error", err)
			} else {
				p.logger.Debug("closed database", "path", path)
			}
		}
		p.report()
	})
	return p
}

// SetObserver registers an observer for the open handle count
func (p *Pool) SetObserver(o OpenObserver) {
	p.observer = o
}

func (p *Pool) report() {
	if p.observer != nil {
		p.observer.SetOpenHandles(p.cache.ItemCount())
	}
}

// Open returns a pooled handle for path, opening and migrating it on first use
func (p *Pool) Open(ctx context.Context, path string) (*DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if v, ok := p.cache.Get(path); ok {
		p.cache.SetDefault(path, v)
		return v.(*DB), nil
	}

	// Drops an expired entry the janitor has not collected yet
	p.cache.Delete(path)

	db, err := Open(ctx, path, p.opts.BusyTimeout)
	if err != nil {
		return nil, err
	}
	p.cache.SetDefault(path, db)
	p.logger.Debug("opened database", "path", path)
	p.report()
	return db, nil
}

// Evict closes the pooled handle for path, if any
func (p *Pool) Evict(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache.Delete(path)
}

// Len returns the number of cached handles
func (p *Pool) Len() int {
	return p.cache.ItemCount()
}

// Close closes every pooled handle
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for path := range p.cache.Items() {
		p.cache.Delete(path)
	}
	p.cache.DeleteExpired()
}
