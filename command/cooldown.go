// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"sync"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
)

// CooldownSpec bounds invocation frequency for one command. Capacity
// invocations are allowed per Window, scoped per user per guild.
type CooldownSpec struct {
	Capacity int
	Window   time.Duration
}

// bucket tracks remaining allowance for one (command, user, guild)
// scope. Tokens refill lazily on access, proportional to elapsed
// time, never exceeding capacity.
type bucket struct {
	available float64
	refilled  time.Time
	touched   time.Time
	spec      CooldownSpec
}

// cooldowns holds all live buckets for one router. Buckets idle for
// longer than their own window are evicted during periodic sweeps so
// the map does not grow with every user ever seen.
type cooldowns struct {
	clk clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
	swept   time.Time
}

const sweepInterval = time.Minute

func newCooldowns(clk clock.Clock) *cooldowns {
	return &cooldowns{
		clk:     clk,
		buckets: make(map[string]*bucket),
		swept:   clk.Now(),
	}
}

// take consumes one token from the bucket identified by key, creating
// it at full capacity on first use. On an empty bucket it returns
// false and the wait until the next token accrues.
func (c *cooldowns) take(key string, spec CooldownSpec) (ok bool, wait time.Duration) {
	now := c.clk.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.maybeSweep(now)

	b := c.buckets[key]
	if b == nil {
		b = &bucket{available: float64(spec.Capacity), refilled: now, spec: spec}
		c.buckets[key] = b
	}
	b.refill(now)
	b.touched = now

	if b.available >= 1 {
		b.available--
		return true, 0
	}
	perToken := float64(spec.Window) / float64(spec.Capacity)
	deficit := 1 - b.available
	return false, time.Duration(deficit * perToken)
}

func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.refilled)
	if elapsed <= 0 {
		return
	}
	b.available += float64(elapsed) / float64(b.spec.Window) * float64(b.spec.Capacity)
	if cap := float64(b.spec.Capacity); b.available > cap {
		b.available = cap
	}
	b.refilled = now
}

func (c *cooldowns) maybeSweep(now time.Time) {
	if now.Sub(c.swept) < sweepInterval {
		return
	}
	c.swept = now
	for key, b := range c.buckets {
		if now.Sub(b.touched) > b.spec.Window {
			delete(c.buckets, key)
		}
	}
}
