// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具
//
// Package retry decides and schedules automatic retries of rate-limited
// downloads.

package retry

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	DefaultCeiling = 3
	DefaultTick    = time.Second
)

// DefaultSchedule is the wait before attempt 1, 2 and 3.
var DefaultSchedule = []time.Duration{20 * time.Second, 45 * time.Second, 90 * time.Second}

// IsRateLimited reports whether a diagnostic describes a throttling response.
func IsRateLimited(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "429") ||
		strings.Contains(t, "too many requests") ||
		strings.Contains(t, "rate limit") ||
		strings.Contains(t, "ratelimit")
}

// Options for a Controller
type Options struct {
	Ceiling  int
	Schedule []time.Duration
	// Tick is the countdown granularity; remaining time is reported in ticks.
	Tick time.Duration
}

// Controller keeps per-job attempt counters and at most one pending
// countdown per job.
type Controller struct {
	ceiling  int
	schedule []time.Duration
	tick     time.Duration

	mu      sync.Mutex
	counts  map[int64]int
	pending map[int64]*countdown
}

type countdown struct {
	stop chan struct{}
	once sync.Once
}

func (c *countdown) cancel() {
	c.once.Do(func() { close(c.stop) })
}

// New creates a Controller, filling zero options with defaults.
func New(opts Options) *Controller {
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if len(opts.Schedule) == 0 {
		opts.Schedule = DefaultSchedule
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	return &Controller{
		ceiling:  opts.Ceiling,
		schedule: append([]time.Duration(nil), opts.Schedule...),
		tick:     opts.Tick,
		counts:   make(map[int64]int),
		pending:  make(map[int64]*countdown),
	}
}

// Ceiling is the number of automatic retries allowed per job.
func (c *Controller) Ceiling() int { return c.ceiling }

// Next records one more rate-limited failure. ok is false once the ceiling
// is exceeded, in which case the counter is reset.
func (c *Controller) Next(id int64) (attempt int, delay time.Duration, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	attempt = c.counts[id] + 1
	if attempt > c.ceiling {
		delete(c.counts, id)
		return attempt, 0, false
	}
	c.counts[id] = attempt

	i := attempt - 1
	if i >= len(c.schedule) {
		i = len(c.schedule) - 1
	}
	return attempt, c.schedule[i], true
}

// Attempts returns the current counter of a job.
func (c *Controller) Attempts(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

// Ticks converts a delay into the countdown start value.
func (c *Controller) Ticks(delay time.Duration) int {
	n := int((delay + c.tick - 1) / c.tick)
	if n < 1 {
		n = 1
	}
	return n
}

// Schedule starts a countdown for id, replacing any earlier one. onTick
// receives the remaining ticks after each tick while more than zero remain.
// onFire runs once when the delay elapses unless Clear was called first.
// Callbacks run on the countdown goroutine.
func (c *Controller) Schedule(id int64, delay time.Duration, onTick func(remaining int), onFire func()) {
	cd := &countdown{stop: make(chan struct{})}

	c.mu.Lock()
	if old, ok := c.pending[id]; ok {
		old.cancel()
	}
	c.pending[id] = cd
	c.mu.Unlock()

	remaining := c.Ticks(delay)
	go func() {
		ticker := time.NewTicker(c.tick)
		defer ticker.Stop()
		deadline := time.NewTimer(delay)
		defer deadline.Stop()

		for {
			select {
			case <-cd.stop:
				return
			case <-ticker.C:
				remaining--
				if remaining <= 0 || !c.isCurrent(id, cd) {
					continue
				}
				if onTick != nil {
					onTick(remaining)
				}
			case <-deadline.C:
				if c.release(id, cd) && onFire != nil {
					onFire()
				}
				return
			}
		}
	}()
}

// Pending reports whether a countdown is running for id.
func (c *Controller) Pending(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

// Clear stops the countdown of id. The counter is kept.
func (c *Controller) Clear(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cd, ok := c.pending[id]; ok {
		cd.cancel()
		delete(c.pending, id)
	}
}

// Reset stops the countdown and forgets the counter of id.
func (c *Controller) Reset(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cd, ok := c.pending[id]; ok {
		cd.cancel()
		delete(c.pending, id)
	}
	delete(c.counts, id)
}

// ClearAll stops every countdown.
func (c *Controller) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cd := range c.pending {
		cd.cancel()
		delete(c.pending, id)
	}
}

func (c *Controller) isCurrent(id int64, cd *countdown) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[id] == cd
}

func (c *Controller) release(id int64, cd *countdown) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[id] != cd {
		return false
	}
	delete(c.pending, id)
	return true
}

// CountdownMessage is shown on a job waiting for an automatic retry.
func CountdownMessage(remaining, attempt, ceiling int) string {
	return fmt.Sprintf("Rate limited by site (HTTP 429). Auto-retrying in %ds (attempt %d/%d).", remaining, attempt, ceiling)
}

// FinalMessage is shown once automatic retries are exhausted.
func FinalMessage(ceiling int) string {
	return fmt.Sprintf("Rate limited by site (HTTP 429). Retried %d times. Please wait a bit and try again.", ceiling)
}
