// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"sync"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
)

// ReplySink is the transport-provided capability to respond to a
// single invocation. Respond may be called at most once; Followup any
// number of times after Respond.
type ReplySink interface {
	Respond(ctx context.Context, msg platform.Outgoing) error
	Followup(ctx context.Context, msg platform.Outgoing) error
}

// FollowupToken correlates a deferred acknowledgment with the later
// completion message. Tokens are single-use and expire.
type FollowupToken uint64

// DeferTimeout bounds how long a deferred invocation may stay pending
// before its token is discarded and a timeout notice is sent.
const DeferTimeout = 15 * time.Minute

// Reply tracks the response lifecycle of one invocation: exactly one
// initial response (Reply or Defer), then optional followups.
type Reply struct {
	sink ReplySink
	corr *correlator

	mu      sync.Mutex
	replied bool
	token   FollowupToken
}

// Reply sends the initial response. A second call, or a call after
// Defer, returns ErrReplyUsed.
func (r *Reply) Reply(ctx context.Context, msg platform.Outgoing) error {
	r.mu.Lock()
	if r.replied {
		r.mu.Unlock()
		return ErrReplyUsed
	}
	r.replied = true
	r.mu.Unlock()
	return r.sink.Respond(ctx, msg)
}

// Defer sends an acknowledgment as the initial response and returns a
// token for the eventual completion message. If no followup arrives
// within DeferTimeout the token expires and the user is told the
// operation timed out.
func (r *Reply) Defer(ctx context.Context) (FollowupToken, error) {
	r.mu.Lock()
	if r.replied {
		r.mu.Unlock()
		return 0, ErrReplyUsed
	}
	r.replied = true
	r.mu.Unlock()

	if err := r.sink.Respond(ctx, platform.Outgoing{Content: "Working on it..."}); err != nil {
		return 0, err
	}
	tok := r.corr.issue(r.sink)
	r.mu.Lock()
	r.token = tok
	r.mu.Unlock()
	return tok, nil
}

// Followup sends the completion message for a deferred invocation.
func (r *Reply) Followup(ctx context.Context, tok FollowupToken, msg platform.Outgoing) error {
	sink, ok := r.corr.resolve(tok)
	if !ok {
		return ErrTokenExpired
	}
	return sink.Followup(ctx, msg)
}

func (r *Reply) didReply() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.replied
}

// correlator maps outstanding followup tokens to their reply sinks.
// One correlator serves a whole router; tokens are unique across it.
type correlator struct {
	clk clock.Clock

	mu      sync.Mutex
	next    FollowupToken
	pending map[FollowupToken]*pendingReply
}

type pendingReply struct {
	sink  ReplySink
	timer *clock.Timer
}

func newCorrelator(clk clock.Clock) *correlator {
	return &correlator{clk: clk, pending: make(map[FollowupToken]*pendingReply)}
}

func (c *correlator) issue(sink ReplySink) FollowupToken {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next++
	tok := c.next
	p := &pendingReply{sink: sink}
	p.timer = c.clk.AfterFunc(DeferTimeout, func() { c.expire(tok) })
	c.pending[tok] = p
	return tok
}

// resolve claims the token. Resolution and expiry race benignly: the
// first to remove the entry wins, the other sees it gone.
func (c *correlator) resolve(tok FollowupToken) (ReplySink, bool) {
	c.mu.Lock()
	p, ok := c.pending[tok]
	if ok {
		delete(c.pending, tok)
	}
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	p.timer.Stop()
	return p.sink, true
}

func (c *correlator) expire(tok FollowupToken) {
	c.mu.Lock()
	p, ok := c.pending[tok]
	if ok {
		delete(c.pending, tok)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	// Best effort: the invocation is already lost, tell the user.
	_ = p.sink.Followup(context.Background(), platform.Outgoing{
		Content: "The operation timed out before completing.",
	})
}
