// Package ratelimit paces forward batches and adapts to server flood-wait
// pushback. A token limiter enforces the minimum spacing between batches;
// repeated flood waits inside a short window slow the pace down, a quiet
// stretch speeds it back up.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/chatmover/internal/telegram"
)

const (
	// floodWindow is the sliding window for counting flood-wait events.
	floodWindow = 60 * time.Second

	// slowdownThreshold is how many flood waits within floodWindow trigger
	// a slowdown.
	slowdownThreshold = 2

	// quietPeriod without flood waits before the pace may recover.
	quietPeriod = 5 * time.Minute

	slowdownFactor = 1.5
	speedupFactor  = 0.9
)

// Controller is the adaptive pacing state. Safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	limiter *rate.Limiter

	delay    time.Duration
	minDelay time.Duration
	maxDelay time.Duration

	window        []time.Time
	lastFloodWait time.Time

	totalEvents     int
	totalWaitedSecs int

	// sleep is swapped out by tests
	sleep func(ctx context.Context, d time.Duration) error
}

func ctxSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// New creates a Controller starting at delay, clamped to [min, max].
func New(delay, min, max time.Duration) *Controller {
	if delay < min {
		delay = min
	}
	if delay > max {
		delay = max
	}
	return &Controller{
		limiter:  rate.NewLimiter(delayToLimit(delay), 1),
		delay:    delay,
		minDelay: min,
		maxDelay: max,
		sleep:    ctxSleep,
	}
}

func delayToLimit(d time.Duration) rate.Limit {
	if d <= 0 {
		return rate.Inf
	}
	return rate.Every(d)
}

// Acquire blocks until the next batch may start. A long quiet stretch
// recovers the pace one notch before waiting.
func (c *Controller) Acquire(ctx context.Context) error {
	c.maybeSpeedUp()
	return c.limiter.Wait(ctx)
}

// maybeSpeedUp reduces the delay by 10% when no flood wait was seen for
// quietPeriod. The quiet clock restarts on every speedup, so recovery
// advances one notch per quiet period, not per call.
func (c *Controller) maybeSpeedUp() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.delay <= c.minDelay {
		return
	}
	if c.lastFloodWait.IsZero() {
		// never throttled, nothing to recover from
		return
	}
	now := time.Now()
	if now.Sub(c.lastFloodWait) < quietPeriod {
		return
	}

	next := time.Duration(float64(c.delay) * speedupFactor)
	if next < c.minDelay {
		next = c.minDelay
	}
	c.delay = next
	c.lastFloodWait = now
	c.limiter.SetLimit(delayToLimit(next))
	slog.Debug("ratelimit.speedup", "delay_ms", next.Milliseconds())
}

// RecordFloodWait notes a server-imposed wait. Two or more events within
// the window slow the pace by 50% and reset the window.
func (c *Controller) RecordFloodWait(seconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	c.totalEvents++
	c.totalWaitedSecs += seconds
	c.lastFloodWait = now

	// prune events outside the window
	kept := c.window[:0]
	for _, t := range c.window {
		if now.Sub(t) < floodWindow {
			kept = append(kept, t)
		}
	}
	c.window = append(kept, now)

	if len(c.window) < slowdownThreshold {
		return
	}

	next := time.Duration(float64(c.delay) * slowdownFactor)
	if next > c.maxDelay {
		next = c.maxDelay
	}
	c.delay = next
	c.window = c.window[:0]
	c.limiter.SetLimit(delayToLimit(next))
	slog.Info("ratelimit.slowdown", "delay_ms", next.Milliseconds(), "wait_s", seconds)
}

// Do runs fn, absorbing a single flood wait: it sleeps the demanded
// duration plus one second, records the event, and retries once. A second
// consecutive flood wait (or any other error) is returned to the caller.
func (c *Controller) Do(ctx context.Context, op string, fn func() error) error {
	err := fn()
	secs, ok := telegram.AsFloodWait(err)
	if !ok {
		return err
	}

	c.RecordFloodWait(secs)
	slog.Warn("flood.wait", "operation", op, "seconds", secs)

	if err := c.sleepCountdown(ctx, secs+1); err != nil {
		return err
	}

	err = fn()
	if secs2, again := telegram.AsFloodWait(err); again {
		c.RecordFloodWait(secs2)
		return err
	}
	return err
}

// SleepFloodWait sleeps out a server-demanded wait plus one second of
// slack. Pacing state is not touched; callers record the event separately.
func (c *Controller) SleepFloodWait(ctx context.Context, seconds int) error {
	return c.sleepCountdown(ctx, seconds+1)
}

// sleepCountdown sleeps total seconds, logging remaining time every 10s so
// long waits are visibly alive.
func (c *Controller) sleepCountdown(ctx context.Context, total int) error {
	remaining := total
	for remaining > 0 {
		step := 10
		if remaining < step {
			step = remaining
		}
		if err := c.sleep(ctx, time.Duration(step)*time.Second); err != nil {
			return err
		}
		remaining -= step
		if remaining > 0 {
			slog.Info("flood.wait_remaining", "seconds", remaining)
		}
	}
	return nil
}

// Snapshot reports the controller state for status rendering.
type Snapshot struct {
	DelayMs         int64
	WindowEvents    int
	TotalEvents     int
	TotalWaitedSecs int
}

// Stats returns a point-in-time snapshot.
func (c *Controller) Stats() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		DelayMs:         c.delay.Milliseconds(),
		WindowEvents:    len(c.window),
		TotalEvents:     c.totalEvents,
		TotalWaitedSecs: c.totalWaitedSecs,
	}
}

// Delay returns the current pacing delay.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}
