// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only when
// Advance is called.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial}
}

// FakeClock is a deterministic Clock for tests. Pending timers,
// tickers, and After channels fire during Advance, in deadline order.
// AfterFunc callbacks run synchronously inside Advance, so a callback
// must not call Advance itself.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
}

// fakeTimer is one scheduled event on a FakeClock. Exactly one of
// ch and fn is set. A non-zero period reschedules the event after
// each fire (ticker behavior).
type fakeTimer struct {
	deadline time.Time
	period   time.Duration
	ch       chan time.Time
	fn       func()
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives when the clock advances past
// the deadline. If d <= 0 it receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &fakeTimer{deadline: c.now.Add(d), ch: ch})
	return ch
}

// AfterFunc schedules f to run when the clock advances past the
// deadline. If d <= 0, f runs synchronously before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &fakeTimer{deadline: c.now.Add(d), fn: f}
	c.pending = append(c.pending, entry)
	return &Timer{stop: func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		was := !entry.stopped && !entry.deadline.IsZero()
		entry.stopped = true
		return was
	}}
}

// NewTicker returns a Ticker that fires on each Advance crossing a
// multiple of d. Panics if d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	entry := &fakeTimer{deadline: c.now.Add(d), period: d, ch: ch}
	c.pending = append(c.pending, entry)
	return &Ticker{C: ch, stopTick: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		entry.stopped = true
	}}
}

// Advance moves the clock forward by d, firing every pending event
// whose deadline falls within the window, in deadline order. Tickers
// fire once per elapsed period; a tick is dropped if the previous
// one was not consumed.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)

	for {
		next := c.earliestLocked(target)
		if next == nil {
			break
		}
		c.now = next.deadline

		if next.period > 0 {
			next.deadline = next.deadline.Add(next.period)
		} else {
			next.stopped = true
		}

		switch {
		case next.ch != nil:
			select {
			case next.ch <- c.now:
			default:
			}
		case next.fn != nil:
			fn := next.fn
			c.mu.Unlock()
			fn()
			c.mu.Lock()
		}
	}

	c.now = target

	// Drop fired one-shot entries.
	kept := c.pending[:0]
	for _, entry := range c.pending {
		if !entry.stopped {
			kept = append(kept, entry)
		}
	}
	c.pending = kept
	c.mu.Unlock()
}

// earliestLocked returns the unstopped pending entry with the
// earliest deadline not after target, or nil.
func (c *FakeClock) earliestLocked(target time.Time) *fakeTimer {
	var earliest *fakeTimer
	for _, entry := range c.pending {
		if entry.stopped || entry.deadline.After(target) {
			continue
		}
		if earliest == nil || entry.deadline.Before(earliest.deadline) {
			earliest = entry
		}
	}
	return earliest
}
