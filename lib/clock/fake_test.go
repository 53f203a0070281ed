// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeNowFrozen(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", c.Now(), start)
	}
	c.Advance(90 * time.Second)
	if want := start.Add(90 * time.Second); !c.Now().Equal(want) {
		t.Fatalf("Now after Advance = %v, want %v", c.Now(), want)
	}
}

func TestFakeAfter(t *testing.T) {
	c := Fake(time.Unix(1000, 0))
	ch := c.After(5 * time.Second)

	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-ch:
		if want := time.Unix(1005, 0); !fired.Equal(want) {
			t.Errorf("fire time = %v, want %v", fired, want)
		}
	default:
		t.Fatal("After did not fire at deadline")
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	c := Fake(time.Unix(1000, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeAfterFunc(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	fired := 0
	timer := c.AfterFunc(time.Minute, func() { fired++ })

	c.Advance(59 * time.Second)
	if fired != 0 {
		t.Fatal("callback ran early")
	}
	c.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}

	// Already fired: Stop reports false, no refire.
	if timer.Stop() {
		t.Error("Stop after fire = true, want false")
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("fired = %d after extra Advance, want 1", fired)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Minute, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop before fire = false, want true")
	}
	c.Advance(time.Hour)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("no tick after one interval")
	}

	// Two intervals with an unconsumed channel: the second tick is
	// dropped, not queued.
	c.Advance(20 * time.Second)
	<-ticker.C
	select {
	case <-ticker.C:
		t.Fatal("ticks queued beyond channel capacity")
	default:
	}

	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("tick after Stop")
	default:
	}
}
