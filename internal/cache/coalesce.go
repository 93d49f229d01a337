package cache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

const DefaultMaxFlights = 10000

// Coalescer runs at most one supplier per key at a time and hands its
// result to every caller that arrived while it was running.
type Coalescer struct {
	group       singleflight.Group
	mu          sync.Mutex
	waiters     map[string]int
	maxFlights  int
	onBreakaway func(key string)
}

func NewCoalescer(maxFlights int, onBreakaway func(key string)) *Coalescer {
	if maxFlights <= 0 {
		maxFlights = DefaultMaxFlights
	}
	return &Coalescer{
		waiters:     make(map[string]int),
		maxFlights:  maxFlights,
		onBreakaway: onBreakaway,
	}
}

// Do runs fn for key or joins the run already in progress. Once maxFlights
// distinct keys are in flight, callers for new keys run fn on their own.
// A panic in a shared run is returned to every waiter as an error.
func (c *Coalescer) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	if !c.join(key) {
		if c.onBreakaway != nil {
			c.onBreakaway(key)
		}
		return fn(ctx)
	}

	// The shared run outlives any single waiter.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (value any, err error) {
		defer func() {
			if r := recover(); r != nil {
				value = nil
				err = fmt.Errorf("cache: supplier for %q panicked: %v", key, r)
			}
		}()
		return fn(flightCtx)
	})
	select {
	case res := <-ch:
		c.leave(key)
		return res.Val, res.Err
	case <-ctx.Done():
		// The key stays counted until its run finishes.
		go func() {
			<-ch
			c.leave(key)
		}()
		return nil, ctx.Err()
	}
}

// InFlight returns the number of keys with a shared run still going.
func (c *Coalescer) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Coalescer) join(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.waiters[key]; !ok && len(c.waiters) >= c.maxFlights {
		return false
	}
	c.waiters[key]++
	return true
}

func (c *Coalescer) leave(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waiters[key]--
	if c.waiters[key] <= 0 {
		delete(c.waiters, key)
	}
}
