// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/platform/platformtest"
	"github.com/guildbot-project/guildbot/ref"
)

func testRegistry(t *testing.T, clk clock.Clock) *Registry {
	t.Helper()
	return NewRegistry(RegistryConfig{
		Logger: slog.New(slog.DiscardHandler),
		Clock:  clk,
	})
}

// waitUntil polls cond until it holds or the test deadline expires.
// Playback runs on a background goroutine, so tests observe its
// effects asynchronously.
func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestGetOrCreateIdentityUnderConcurrency(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	guild := ref.GuildIDFrom(42)

	const goroutines = 32
	got := make([]*Session, goroutines)
	var wg sync.WaitGroup
	for i := range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = reg.GetOrCreate(guild)
		}()
	}
	wg.Wait()

	for i, s := range got {
		if s != got[0] {
			t.Fatalf("goroutine %d observed a different session instance", i)
		}
	}
	if reg.Len() != 1 {
		t.Errorf("registry size = %d, want 1", reg.Len())
	}

	other := reg.GetOrCreate(ref.GuildIDFrom(43))
	if other == got[0] {
		t.Error("distinct guilds share a session")
	}
}

func TestRemoveThenGetOrCreateIsFresh(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	guild := ref.GuildIDFrom(7)

	first := reg.GetOrCreate(guild)
	reg.Remove(context.Background(), guild)
	second := reg.GetOrCreate(guild)
	if first == second {
		t.Error("session survived Remove")
	}
}

func TestRemoveReleasesVoiceConnection(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	client := platformtest.NewFakeClient()
	guild := ref.GuildIDFrom(7)

	s := reg.GetOrCreate(guild)
	if err := s.Connect(context.Background(), client, ref.ChannelIDFrom(100)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := client.VoiceConns()[0]

	if _, err := s.Enqueue(platform.Track{Title: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitUntil(t, "track to start", func() bool { _, ok := s.Current(); return ok })

	reg.Remove(context.Background(), guild)

	if !conn.Disconnected() {
		t.Error("Remove did not disconnect the voice connection")
	}
	if reg.Len() != 0 {
		t.Errorf("registry size after Remove = %d, want 0", reg.Len())
	}
}

func TestEnqueueRequiresConnection(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	s := reg.GetOrCreate(ref.GuildIDFrom(7))
	if _, err := s.Enqueue(platform.Track{Title: "a"}); err != ErrNotConnected {
		t.Errorf("Enqueue error = %v, want ErrNotConnected", err)
	}
}

func TestVoteSkipThreshold(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	client := platformtest.NewFakeClient()
	s := reg.GetOrCreate(ref.GuildIDFrom(7))
	if err := s.Connect(context.Background(), client, ref.ChannelIDFrom(100)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { reg.RemoveAll(context.Background()) })

	requester := ref.UserIDFrom(1)
	s.Enqueue(platform.Track{Title: "first", RequestedBy: requester})
	s.Enqueue(platform.Track{Title: "second", RequestedBy: requester})
	waitUntil(t, "first track to start", func() bool {
		cur, ok := s.Current()
		return ok && cur.Title == "first"
	})

	vote := func(user uint64) SkipOutcome {
		t.Helper()
		out, err := s.VoteSkip(ref.UserIDFrom(user), false)
		if err != nil {
			t.Fatalf("VoteSkip(%d): %v", user, err)
		}
		return out
	}

	if out := vote(2); out.Skipped || out.Votes != 1 {
		t.Fatalf("first vote = %+v, want 1/3 not skipped", out)
	}
	// The same user voting again does not add a vote.
	if out := vote(2); out.Skipped || out.Votes != 1 {
		t.Fatalf("duplicate vote = %+v, want still 1/3", out)
	}
	if out := vote(3); out.Skipped || out.Votes != 2 {
		t.Fatalf("second vote = %+v, want 2/3 not skipped", out)
	}
	if out := vote(4); !out.Skipped {
		t.Fatalf("third vote = %+v, want skipped", out)
	}

	waitUntil(t, "second track to start", func() bool {
		cur, ok := s.Current()
		return ok && cur.Title == "second"
	})
	// The vote set does not carry across tracks.
	if n := s.SkipVotes(); n != 0 {
		t.Errorf("votes after advance = %d, want 0", n)
	}
}

func TestVoteSkipRequesterAndPrivileged(t *testing.T) {
	cases := []struct {
		name       string
		voter      uint64
		privileged bool
	}{
		{name: "requester skips immediately", voter: 1},
		{name: "privileged voter skips immediately", voter: 99, privileged: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := testRegistry(t, clock.Real())
			client := platformtest.NewFakeClient()
			s := reg.GetOrCreate(ref.GuildIDFrom(7))
			if err := s.Connect(context.Background(), client, ref.ChannelIDFrom(100)); err != nil {
				t.Fatalf("Connect: %v", err)
			}
			t.Cleanup(func() { reg.RemoveAll(context.Background()) })

			s.Enqueue(platform.Track{Title: "a", RequestedBy: ref.UserIDFrom(1)})
			waitUntil(t, "track to start", func() bool { _, ok := s.Current(); return ok })

			out, err := s.VoteSkip(ref.UserIDFrom(tc.voter), tc.privileged)
			if err != nil {
				t.Fatalf("VoteSkip: %v", err)
			}
			if !out.Skipped {
				t.Errorf("outcome = %+v, want immediate skip", out)
			}
		})
	}
}

func TestVoteSkipNothingPlaying(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	s := reg.GetOrCreate(ref.GuildIDFrom(7))
	if _, err := s.VoteSkip(ref.UserIDFrom(1), false); err != ErrNothingPlaying {
		t.Errorf("VoteSkip error = %v, want ErrNothingPlaying", err)
	}
}

func TestLoopRepeatsFinishedTrackOnly(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	client := platformtest.NewFakeClient()
	s := reg.GetOrCreate(ref.GuildIDFrom(7))
	if err := s.Connect(context.Background(), client, ref.ChannelIDFrom(100)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { reg.RemoveAll(context.Background()) })
	conn := client.VoiceConns()[0]

	s.SetLoop(true)
	s.Enqueue(platform.Track{Title: "a", RequestedBy: ref.UserIDFrom(1)})
	waitUntil(t, "track to start", func() bool { return len(conn.Played()) == 1 })

	// Natural finish with loop on: the track plays again.
	conn.FinishTrack()
	waitUntil(t, "track to repeat", func() bool { return len(conn.Played()) == 2 })

	// A skip ends the track for good even with loop on.
	waitUntil(t, "repeat to start", func() bool { _, ok := s.Current(); return ok })
	if _, err := s.VoteSkip(ref.UserIDFrom(1), false); err != nil {
		t.Fatalf("VoteSkip: %v", err)
	}
	waitUntil(t, "playback to go idle", func() bool { _, ok := s.Current(); return !ok })

	if got := len(conn.Played()); got != 2 {
		t.Errorf("plays after skip = %d, want 2", got)
	}
}

func TestIdleTimeoutTearsSessionDown(t *testing.T) {
	clk := clock.Fake(time.Unix(5000, 0))
	reg := NewRegistry(RegistryConfig{
		Logger: slog.New(slog.DiscardHandler),
		Clock:  clk,
	})
	client := platformtest.NewFakeClient()
	guild := ref.GuildIDFrom(7)

	s := reg.GetOrCreate(guild)
	if err := s.Connect(context.Background(), client, ref.ChannelIDFrom(100)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	conn := client.VoiceConns()[0]

	// The loop registers its idle timer asynchronously; keep advancing
	// until the teardown lands.
	waitUntil(t, "idle teardown", func() bool {
		clk.Advance(DefaultIdleTimeout + time.Second)
		return reg.Len() == 0 && conn.Disconnected()
	})
}

func TestPurposeCacheFreshness(t *testing.T) {
	clk := clock.Fake(time.Unix(5000, 0))
	reg := NewRegistry(RegistryConfig{
		Logger: slog.New(slog.DiscardHandler),
		Clock:  clk,
	})
	s := reg.GetOrCreate(ref.GuildIDFrom(7))

	if _, ok := s.CachedObject("bot-logs"); ok {
		t.Fatal("cache hit before any store")
	}

	s.CacheObject("bot-logs", 12345)
	if got, ok := s.CachedObject("bot-logs"); !ok || got != 12345 {
		t.Fatalf("CachedObject = %d, %v; want 12345, true", got, ok)
	}

	clk.Advance(purposeFreshness + time.Second)
	if _, ok := s.CachedObject("bot-logs"); ok {
		t.Error("cache hit past the freshness budget")
	}
}

func TestQueueSnapshot(t *testing.T) {
	reg := testRegistry(t, clock.Real())
	client := platformtest.NewFakeClient()
	s := reg.GetOrCreate(ref.GuildIDFrom(7))
	if err := s.Connect(context.Background(), client, ref.ChannelIDFrom(100)); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { reg.RemoveAll(context.Background()) })

	waitTitles := make([]string, 0, 4)
	for i := range 4 {
		title := fmt.Sprintf("track-%d", i)
		waitTitles = append(waitTitles, title)
		if _, err := s.Enqueue(platform.Track{Title: title}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// The first track starts playing; the rest stay queued in order.
	waitUntil(t, "first track to start", func() bool {
		cur, ok := s.Current()
		return ok && cur.Title == waitTitles[0]
	})
	q := s.Queue()
	if len(q) != 3 {
		t.Fatalf("queue length = %d, want 3", len(q))
	}
	for i, track := range q {
		if track.Title != waitTitles[i+1] {
			t.Errorf("queue[%d] = %q, want %q", i, track.Title, waitTitles[i+1])
		}
	}
}
