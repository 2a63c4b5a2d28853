// Package ratelimit paces requests per destination host with a randomized
// minimum delay between consecutive accesses.
package ratelimit

import (
	"context"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/entity-harvester/internal/metrics"
)

// Default delay window applied when the configuration leaves it empty.
const (
	DefaultMinDelay = time.Second
	DefaultMaxDelay = 3 * time.Second
)

// Config holds pacing configuration.
type Config struct {
	// MinDelay and MaxDelay bound the delay drawn for every access to a destination.
	MinDelay time.Duration
	MaxDelay time.Duration
	// GlobalRPS caps the aggregate request rate across all destinations. Zero disables the cap.
	GlobalRPS   float64
	GlobalBurst int
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithRand overrides the uniform [0,1) source used to draw delays.
func WithRand(draw func() float64) Option {
	return func(c *Controller) {
		if draw != nil {
			c.draw = draw
		}
	}
}

// WithObserver overrides how realized waits are reported.
func WithObserver(observe func(destination string, waited time.Duration)) Option {
	return func(c *Controller) {
		if observe != nil {
			c.observe = observe
		}
	}
}

// Controller tracks the last access per destination and delays callers that
// come back too soon. It is safe for concurrent use.
type Controller struct {
	mu    sync.Mutex
	hosts map[string]*destinationState

	minDelay time.Duration
	maxDelay time.Duration
	global   *rate.Limiter

	now     func() time.Time
	draw    func() float64
	observe func(string, time.Duration)
}

// destinationState is guarded by sem, never by Controller.mu.
type destinationState struct {
	sem  *semaphore.Weighted
	last time.Time
	seen bool
}

// New creates a Controller.
func New(cfg Config, opts ...Option) *Controller {
	minDelay, maxDelay := cfg.MinDelay, cfg.MaxDelay
	if minDelay < 0 {
		minDelay = 0
	}
	if minDelay == 0 && maxDelay == 0 {
		minDelay, maxDelay = DefaultMinDelay, DefaultMaxDelay
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	c := &Controller{
		hosts:    make(map[string]*destinationState),
		minDelay: minDelay,
		maxDelay: maxDelay,
		now:      time.Now,
		draw:     rand.Float64,
		observe:  metrics.ObserveRateLimitDelay,
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = 1
		}
		c.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wait blocks until destination may be accessed again, then records the access.
//
// The first access to a destination never waits. If ctx ends while waiting,
// Wait returns early and records nothing, since no request should follow.
func (c *Controller) Wait(ctx context.Context, destination string) {
	key := Destination(destination)
	state := c.state(key)
	if err := state.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer state.sem.Release(1)

	delay := c.drawDelay()
	if state.seen {
		elapsed := c.now().Sub(state.last)
		if remaining := delay - elapsed; remaining > 0 {
			if !pause(ctx, remaining) {
				return
			}
			c.observe(key, remaining)
		}
	}
	if c.global != nil {
		if err := c.global.Wait(ctx); err != nil {
			return
		}
	}
	state.last = c.now()
	state.seen = true
}

// Delays returns the configured delay window.
func (c *Controller) Delays() (time.Duration, time.Duration) {
	return c.minDelay, c.maxDelay
}

func (c *Controller) state(key string) *destinationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, ok := c.hosts[key]
	if !ok {
		state = &destinationState{sem: semaphore.NewWeighted(1)}
		c.hosts[key] = state
	}
	return state
}

func (c *Controller) drawDelay() time.Duration {
	span := c.maxDelay - c.minDelay
	if span <= 0 {
		return c.minDelay
	}
	return c.minDelay + time.Duration(c.draw()*float64(span))
}

// pause sleeps for delay and reports false if ctx ended first.
func pause(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Destination derives the rate-limiting key from a URL or a bare host.
func Destination(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "unknown"
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
