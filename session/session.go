// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds per-guild runtime state.
//
// A Session is created on first use for a guild and lives until the
// registry removes it. It owns the guild's voice playback state (the
// connection, the pending track queue, skip votes) and a small
// freshness-bounded cache of purpose-to-object lookups so hot event
// paths avoid a store read per event.
//
// All session state is guarded by one mutex per session. Critical
// sections are short and never perform I/O; playback I/O happens on
// the session's background goroutine using snapshots taken under the
// lock.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
)

// SkipVotesNeeded is how many distinct non-privileged voters it takes
// to skip the current track.
const SkipVotesNeeded = 3

// purposeFreshness bounds how long a cached purpose lookup is trusted
// before callers must re-resolve against the store.
const purposeFreshness = 5 * time.Minute

// ErrNothingPlaying is returned by VoteSkip when no track is active.
var ErrNothingPlaying = errors.New("session: nothing playing")

// ErrNotConnected is returned by playback operations that need an
// active voice connection.
var ErrNotConnected = errors.New("session: not connected to voice")

// SkipOutcome reports the effect of one skip vote.
type SkipOutcome struct {
	// Skipped is true when the vote ended the current track.
	Skipped bool
	// Votes is the vote count after this vote, 0 when Skipped.
	Votes int
	// Needed is the threshold, for user-facing "2/3" style output.
	Needed int
}

type purposeEntry struct {
	objectID uint64
	fetched  time.Time
}

// Session is the mutable runtime state of one guild.
type Session struct {
	GuildID ref.GuildID

	logger   *slog.Logger
	clk      clock.Clock
	registry *Registry

	mu        sync.Mutex
	conn      platform.VoiceConn
	queue     []platform.Track
	current   *platform.Track
	skipVotes map[ref.UserID]struct{}
	skipped   bool
	looping   bool
	played    int64
	purposes  map[string]purposeEntry

	// wake nudges the playback loop when a track is enqueued while
	// the queue is empty. Capacity 1; a dropped wake is fine because
	// the loop re-checks the queue on each pass.
	wake chan struct{}

	cancel   context.CancelFunc
	loopDone chan struct{}
}

func newSession(guildID ref.GuildID, logger *slog.Logger, clk clock.Clock, reg *Registry) *Session {
	return &Session{
		GuildID:   guildID,
		logger:    logger.With("guild", guildID),
		clk:       clk,
		registry:  reg,
		skipVotes: make(map[ref.UserID]struct{}),
		purposes:  make(map[string]purposeEntry),
		wake:      make(chan struct{}, 1),
	}
}

// Connect joins the given voice channel and starts the playback loop.
// Connecting while already connected is a no-op, even to a different
// channel; callers disconnect first via Registry.Remove.
func (s *Session) Connect(ctx context.Context, client platform.Client, channelID ref.ChannelID) error {
	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	conn, err := client.JoinVoice(ctx, s.GuildID, channelID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.conn != nil {
		// Lost the race to another Connect; keep the first.
		s.mu.Unlock()
		return conn.Disconnect(ctx)
	}
	s.conn = conn
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.loopDone = make(chan struct{})
	s.mu.Unlock()

	go s.playbackLoop(loopCtx, conn)
	return nil
}

// Connected reports whether the session holds a voice connection, and
// to which channel.
func (s *Session) Connected() (ref.ChannelID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ref.ChannelID{}, false
	}
	return s.conn.ChannelID(), true
}

// Enqueue appends a track to the pending queue and returns its
// position (1-based, counting the current track as 0).
func (s *Session) Enqueue(track platform.Track) (int, error) {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return 0, ErrNotConnected
	}
	s.queue = append(s.queue, track)
	pos := len(s.queue)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return pos, nil
}

// Queue returns a snapshot of the pending tracks.
func (s *Session) Queue() []platform.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platform.Track, len(s.queue))
	copy(out, s.queue)
	return out
}

// Current returns the track being played, if any.
func (s *Session) Current() (platform.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return platform.Track{}, false
	}
	return *s.current, true
}

// SetLoop toggles repeating the current track when it finishes
// naturally. A skipped track never repeats.
func (s *Session) SetLoop(on bool) {
	s.mu.Lock()
	s.looping = on
	s.mu.Unlock()
}

// Loop reports the loop setting.
func (s *Session) Loop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.looping
}

// Played returns how many tracks this session has finished or
// skipped.
func (s *Session) Played() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.played
}

// VoteSkip records one skip vote. The track's requester and
// privileged voters skip immediately; otherwise the track ends once
// SkipVotesNeeded distinct users have voted. Duplicate votes from the
// same user count once.
func (s *Session) VoteSkip(voter ref.UserID, privileged bool) (SkipOutcome, error) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return SkipOutcome{}, ErrNothingPlaying
	}

	if privileged || s.current.RequestedBy == voter {
		conn := s.beginSkipLocked()
		s.mu.Unlock()
		conn.Stop()
		return SkipOutcome{Skipped: true, Needed: SkipVotesNeeded}, nil
	}

	s.skipVotes[voter] = struct{}{}
	votes := len(s.skipVotes)
	if votes < SkipVotesNeeded {
		s.mu.Unlock()
		return SkipOutcome{Votes: votes, Needed: SkipVotesNeeded}, nil
	}
	conn := s.beginSkipLocked()
	s.mu.Unlock()
	conn.Stop()
	return SkipOutcome{Skipped: true, Needed: SkipVotesNeeded}, nil
}

// SkipVotes returns the current vote count.
func (s *Session) SkipVotes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.skipVotes)
}

// beginSkipLocked marks the current track skipped and clears the vote
// set. Caller holds s.mu and calls Stop outside it.
func (s *Session) beginSkipLocked() platform.VoiceConn {
	s.skipped = true
	clear(s.skipVotes)
	return s.conn
}

// CachedObject returns the cached object for a purpose if the entry
// is still within the freshness budget.
func (s *Session) CachedObject(purpose string) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.purposes[purpose]
	if !ok || s.clk.Now().Sub(entry.fetched) > purposeFreshness {
		return 0, false
	}
	return entry.objectID, true
}

// CacheObject stores a purpose lookup with the current time as its
// fetch timestamp.
func (s *Session) CacheObject(purpose string, objectID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purposes[purpose] = purposeEntry{objectID: objectID, fetched: s.clk.Now()}
}

// playbackLoop consumes the queue until cancelled or idle. It is the
// only goroutine that calls Play; everything it shares with command
// handlers goes through s.mu.
func (s *Session) playbackLoop(ctx context.Context, conn platform.VoiceConn) {
	defer close(s.loopDone)
	for {
		track, ok := s.dequeue()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
				continue
			case <-s.clk.After(s.registry.idleTimeout):
				s.logger.Info("voice session idle, leaving")
				// Remove waits for this goroutine, so it must not run
				// on it.
				go s.registry.Remove(context.Background(), s.GuildID)
				return
			}
		}

		err := conn.Play(ctx, track)
		again := s.finishTrack(err == nil)
		if err != nil && ctx.Err() == nil {
			s.logger.Error("playing track", "track", track.Title, "error", err)
		}
		if ctx.Err() != nil {
			return
		}
		if again {
			s.requeueFront(track)
		}
	}
}

// dequeue pops the next track and makes it current.
func (s *Session) dequeue() (platform.Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return platform.Track{}, false
	}
	track := s.queue[0]
	s.queue = s.queue[1:]
	s.current = &track
	s.skipped = false
	clear(s.skipVotes)
	return track, true
}

// finishTrack clears playback state after Play returns and reports
// whether the track should repeat.
func (s *Session) finishTrack(completed bool) (again bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
	s.played++
	clear(s.skipVotes)
	return completed && s.looping && !s.skipped
}

func (s *Session) requeueFront(track platform.Track) {
	s.mu.Lock()
	s.queue = append([]platform.Track{track}, s.queue...)
	s.mu.Unlock()
}

// teardown stops the playback loop and releases the voice connection.
// Called only by the registry, after the session is detached.
func (s *Session) teardown(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	done := s.loopDone
	conn := s.conn
	s.conn = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		if conn != nil {
			conn.Stop()
		}
		<-done
	}
	if conn != nil {
		if err := conn.Disconnect(ctx); err != nil {
			s.logger.Error("disconnecting voice", "error", err)
		}
	}
}
