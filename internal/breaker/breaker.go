// Package breaker stops calling a failing dependency for a while once its
// failure rate crosses a threshold, then lets a few probes through before
// closing again.
package breaker

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrOpen = errors.New("breaker: open")

type State int32

const (
	StateClosed State = iota + 1
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	defaultFailureRatePercent = 50
	defaultMinimumRequests    = 5
	defaultEvaluationWindow   = 30 * time.Second
	defaultOpenDuration       = time.Minute
	defaultHalfOpenMaxProbes  = 1
)

type Config struct {
	FailureRatePercent int
	MinimumRequests    int
	EvaluationWindow   time.Duration
	OpenDuration       time.Duration
	HalfOpenMaxProbes  int
	Clock              clock.Clock
}

type Breaker struct {
	state         atomic.Int32
	reqCount      atomic.Int32
	failCount     atomic.Int32
	windowStart   atomic.Int64
	openUntil     atomic.Int64
	probeInFlight atomic.Int32
	probeSuccess  atomic.Int32
	probeFail     atomic.Int32
	cfg           Config
	clock         clock.Clock
}

// New fills zero fields of cfg with defaults.
func New(cfg Config) *Breaker {
	if cfg.FailureRatePercent <= 0 {
		cfg.FailureRatePercent = defaultFailureRatePercent
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = defaultMinimumRequests
	}
	if cfg.EvaluationWindow <= 0 {
		cfg.EvaluationWindow = defaultEvaluationWindow
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = defaultOpenDuration
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = defaultHalfOpenMaxProbes
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	b := &Breaker{cfg: cfg, clock: clk}
	b.state.Store(int32(StateClosed))
	b.windowStart.Store(clk.Now().UnixNano())
	return b
}

func (b *Breaker) State() State {
	if b == nil {
		return StateClosed
	}
	return State(b.state.Load())
}

// Do runs fn unless the breaker is open, and counts its outcome.
func (b *Breaker) Do(fn func() error) error {
	if b == nil {
		return fn()
	}
	if !b.Allow() {
		return ErrOpen
	}
	err := fn()
	b.Report(err == nil)
	return err
}

func (b *Breaker) Allow() bool {
	if b == nil {
		return true
	}
	state := State(b.state.Load())
	if state == StateClosed {
		return true
	}
	if state == StateOpen {
		if b.clock.Now().UnixNano() < b.openUntil.Load() {
			return false
		}
		if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			b.resetProbes()
		}
	}
	if b.probeInFlight.Add(1) > int32(b.cfg.HalfOpenMaxProbes) {
		b.probeInFlight.Add(-1)
		return false
	}
	return true
}

func (b *Breaker) Report(success bool) {
	if b == nil {
		return
	}
	now := b.clock.Now()
	switch State(b.state.Load()) {
	case StateClosed:
		b.rotateWindow(now)
		b.reqCount.Add(1)
		if !success {
			b.failCount.Add(1)
		}
		b.maybeOpen(now)
	case StateHalfOpen:
		if b.probeInFlight.Load() > 0 {
			b.probeInFlight.Add(-1)
		}
		if !success {
			b.probeFail.Add(1)
			b.open(now)
			return
		}
		b.probeSuccess.Add(1)
		if b.probeFail.Load() == 0 && int(b.probeSuccess.Load()) >= b.cfg.HalfOpenMaxProbes {
			b.close(now)
		}
	}
}

func (b *Breaker) rotateWindow(now time.Time) {
	start := b.windowStart.Load()
	if now.Sub(time.Unix(0, start)) > b.cfg.EvaluationWindow {
		if b.windowStart.CompareAndSwap(start, now.UnixNano()) {
			b.reqCount.Store(0)
			b.failCount.Store(0)
		}
	}
}

func (b *Breaker) maybeOpen(now time.Time) {
	reqCount := int(b.reqCount.Load())
	if reqCount < b.cfg.MinimumRequests {
		return
	}
	failureRate := (int(b.failCount.Load()) * 100) / reqCount
	if failureRate >= b.cfg.FailureRatePercent {
		b.open(now)
	}
}

func (b *Breaker) open(now time.Time) {
	b.openUntil.Store(now.Add(b.cfg.OpenDuration).UnixNano())
	b.state.Store(int32(StateOpen))
}

func (b *Breaker) close(now time.Time) {
	b.state.Store(int32(StateClosed))
	b.windowStart.Store(now.UnixNano())
	b.reqCount.Store(0)
	b.failCount.Store(0)
	b.resetProbes()
}

func (b *Breaker) resetProbes() {
	b.probeInFlight.Store(0)
	b.probeSuccess.Store(0)
	b.probeFail.Store(0)
}
