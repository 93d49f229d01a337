package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

const (
	DefaultTTL = 5 * time.Minute

	// NoExpiration passed as a ttl stores an entry that never expires.
	NoExpiration time.Duration = 0
)

// Supplier computes the value for a missing key.
type Supplier func(ctx context.Context) (any, error)

type Options struct {
	// DefaultTTL applies to Set and GetOrSet. Zero selects DefaultTTL,
	// a negative value makes default writes never expire.
	DefaultTTL time.Duration
	Clock      clock.Clock
	Logger     *zap.Logger

	// Coalesce shares one supplier run between overlapping GetOrSet
	// misses on the same key.
	Coalesce    bool
	MaxFlights  int
	OnBreakaway func(key string)
}

type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

type entry struct {
	value     any
	expiresAt time.Time
	hasExpiry bool
}

func (e entry) expired(now time.Time) bool {
	return e.hasExpiry && now.After(e.expiresAt)
}

// Cache maps string keys to opaque values with optional per-entry expiry.
// Expired entries are removed lazily by Get and Has; nothing sweeps in the
// background. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	hits    uint64
	misses  uint64
	// generation advances on Clear so fills started earlier are not stored.
	generation uint64

	defaultTTL time.Duration
	clock      clock.Clock
	logger     *zap.Logger
	flights    *Coalescer
}

func New(opts Options) *Cache {
	ttl := opts.DefaultTTL
	switch {
	case ttl == 0:
		ttl = DefaultTTL
	case ttl < 0:
		ttl = NoExpiration
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		entries:    make(map[string]entry),
		defaultTTL: ttl,
		clock:      clk,
		logger:     logger,
	}
	if opts.Coalesce {
		c.flights = NewCoalescer(opts.MaxFlights, opts.OnBreakaway)
	}
	return c
}

func (c *Cache) DefaultTTL() time.Duration {
	return c.defaultTTL
}

// Get returns the live value for key. Every call counts as a hit or a miss.
func (c *Cache) Get(key string) (any, bool) {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if e.expired(now) {
		delete(c.entries, key)
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key using the cache's default TTL.
func (c *Cache) Set(key string, value any) {
	c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL overwrites key. A ttl <= 0 means the entry never expires.
func (c *Cache) SetWithTTL(key string, value any, ttl time.Duration) {
	e := c.newEntry(value, ttl)

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *Cache) newEntry(value any, ttl time.Duration) entry {
	e := entry{value: value}
	if ttl > 0 {
		e.hasExpiry = true
		e.expiresAt = c.clock.Now().Add(ttl)
	}
	return e
}

// storeFrom writes key only if no Clear happened since generation was read.
func (c *Cache) storeFrom(generation uint64, key string, value any, ttl time.Duration) bool {
	e := c.newEntry(value, ttl)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != generation {
		return false
	}
	c.entries[key] = e
	return true
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Delete reports whether an entry was removed. Stale entries count.
func (c *Cache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Has applies the same expiry check as Get but leaves the statistics alone.
func (c *Cache) Has(key string) bool {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	if e.expired(now) {
		delete(c.entries, key)
		return false
	}
	return true
}

// Clear drops every entry. Hit and miss counters are kept; see ResetStats.
// Suppliers already running when Clear is called still return their value
// to their callers, but it is not stored.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.generation++
	c.mu.Unlock()
}

func (c *Cache) ResetStats() {
	c.mu.Lock()
	c.hits = 0
	c.misses = 0
	c.mu.Unlock()
}

// Stats reports counters and the resident entry count, which includes
// expired entries nobody has looked at yet.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.hits + c.misses
	if total == 0 {
		total = 1
	}
	return Stats{
		Hits:    c.hits,
		Misses:  c.misses,
		Size:    len(c.entries),
		HitRate: float64(c.hits) / float64(total),
	}
}

func (c *Cache) GetOrSet(ctx context.Context, key string, fn Supplier) (any, error) {
	return c.GetOrSetWithTTL(ctx, key, c.defaultTTL, fn)
}

// GetOrSetWithTTL returns the cached value for key or stores the result of fn.
// A failing fn is logged and its error returned unchanged; nothing is stored.
//
// Without coalescing every overlapping miss runs its own fn and the last
// one to finish wins. With coalescing overlapping misses wait for a single
// run, and a waiter whose ctx ends gives up without cancelling that run.
func (c *Cache) GetOrSetWithTTL(ctx context.Context, key string, ttl time.Duration, fn Supplier) (any, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}
	if c.flights == nil {
		return c.fill(ctx, key, ttl, fn)
	}
	return c.flights.Do(ctx, key, func(ctx context.Context) (any, error) {
		return c.fill(ctx, key, ttl, fn)
	})
}

func (c *Cache) fill(ctx context.Context, key string, ttl time.Duration, fn Supplier) (any, error) {
	generation := c.currentGeneration()
	value, err := fn(ctx)
	if err != nil {
		c.logger.Error("cache supplier failed", zap.String("key", key), zap.Error(err))
		return nil, err
	}
	if !c.storeFrom(generation, key, value, ttl) {
		c.logger.Debug("cache cleared during fill, value not stored", zap.String("key", key))
	}
	return value, nil
}

// Load is GetOrSetWithTTL for a typed supplier.
func Load[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	value, err := c.GetOrSetWithTTL(ctx, key, ttl, func(ctx context.Context) (any, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("cache: value for %q is %T", key, value)
	}
	return typed, nil
}
