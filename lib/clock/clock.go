// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for testability.
//
// Production code injects [Real]; tests inject [Fake] and drive time
// forward with Advance. Cooldown refill, cache freshness checks, the
// playback idle timeout, and reconcile scheduling all read time
// through a Clock so that their behavior is deterministic under test.
package clock

import "time"

// Clock is the time source used by every guildbot component that
// reads the current time or sets a timer. Code must not call the time
// package directly for these operations.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once, after d elapses.
	// If d <= 0 the channel receives immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after d. The returned Timer can
	// cancel the pending call with Stop; its C field is nil.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a scheduled one-shot event. Timers created by AfterFunc
// have a nil C.
type Timer struct {
	C <-chan time.Time

	stop func() bool
}

// Stop cancels the timer. Returns false if it already fired or was
// already stopped.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks on C. The channel has capacity 1;
// ticks are dropped, not queued, when the consumer falls behind.
type Ticker struct {
	C <-chan time.Time

	stopTick func()
}

// Stop turns the ticker off. C is not closed.
func (t *Ticker) Stop() { t.stopTick() }
