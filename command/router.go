// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
)

// timeRound is the granularity of wait durations shown to users.
const timeRound = time.Second

// Router owns the command table and dispatches invocations through
// the constraint pipeline. Registration mostly happens during
// startup, but extension bundles can be unloaded at runtime, so the
// table is guarded for concurrent Dispatch and Unregister.
type Router struct {
	logger *slog.Logger
	clk    clock.Clock

	mu       sync.RWMutex
	commands map[string]*Command

	limits *cooldowns
	corr   *correlator
}

// NewRouter returns an empty router.
func NewRouter(logger *slog.Logger, clk clock.Clock) *Router {
	return &Router{
		logger:   logger,
		clk:      clk,
		commands: make(map[string]*Command),
		limits:   newCooldowns(clk),
		corr:     newCorrelator(clk),
	}
}

// Register adds a command. A duplicate (namespace, sub) pair is a
// wiring bug in the extension bundles and panics at startup rather
// than shadowing silently.
func (r *Router) Register(cmd *Command) {
	name := qualifiedName(cmd.Namespace, cmd.Sub)
	if cmd.Handler == nil {
		panic(fmt.Sprintf("command: %q registered without handler", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		panic(fmt.Sprintf("command: duplicate registration of %q", name))
	}
	r.commands[name] = cmd
}

// Unregister removes a command, typically when its extension bundle
// unloads. Removing an unknown name is a no-op.
func (r *Router) Unregister(namespace, sub string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, qualifiedName(namespace, sub))
}

// Commands returns all registered commands sorted by qualified name,
// for declaration to the platform and for help output.
func (r *Router) Commands() []*Command {
	r.mu.RLock()
	out := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Command) int {
		an, bn := qualifiedName(a.Namespace, a.Sub), qualifiedName(b.Namespace, b.Sub)
		if an < bn {
			return -1
		}
		if an > bn {
			return 1
		}
		return 0
	})
	return out
}

// Request is one incoming invocation as decoded by the transport.
type Request struct {
	Namespace string
	Sub       string
	GuildID   ref.GuildID
	UserID    ref.UserID
	Member    *platform.Member
	ChannelID ref.ChannelID
	Args      []Arg
	Sink      ReplySink
}

// Dispatch resolves the command, checks its constraints in order
// (existence, guild-only, permission, choices, cooldown), then runs
// the handler. Every path produces exactly one initial response: a
// taxonomy message for constraint failures, the handler's own reply
// on success, or a generic failure notice when the handler errors or
// panics without having replied.
func (r *Router) Dispatch(ctx context.Context, req Request) {
	reply := &Reply{sink: req.Sink, corr: r.corr}
	name := qualifiedName(req.Namespace, req.Sub)

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		r.refuse(ctx, reply, name, &UnknownCommandError{Namespace: req.Namespace, Sub: req.Sub},
			fmt.Sprintf("Unknown command `%s`.", name))
		return
	}

	if err := r.checkConstraints(cmd, &req); err != nil {
		var msg string
		switch e := err.(type) {
		case *PreconditionError:
			msg = e.Reason
		case *RateLimitedError:
			msg = fmt.Sprintf("Slow down. Try again in %s.", e.Wait.Round(timeRound))
		default:
			msg = "That command cannot run right now."
		}
		r.refuse(ctx, reply, name, err, msg)
		return
	}

	inv := &Invocation{
		Command:   cmd,
		GuildID:   req.GuildID,
		UserID:    req.UserID,
		Member:    req.Member,
		ChannelID: req.ChannelID,
		Args:      req.Args,
		reply:     reply,
	}
	r.invoke(ctx, name, inv)
}

func (r *Router) checkConstraints(cmd *Command, req *Request) error {
	c := cmd.Constraints

	if c.GuildOnly && req.GuildID.IsZero() {
		return &PreconditionError{Reason: "This command only works inside a server."}
	}

	if c.Permission != 0 {
		if req.Member == nil || !req.Member.Permissions.Has(c.Permission) {
			return &PreconditionError{Reason: "You do not have permission to use this command."}
		}
	}

	for argName, allowed := range c.Choices {
		got, ok := argValue(req.Args, argName)
		if !ok {
			continue
		}
		s, isStr := got.(string)
		if !isStr || !slices.Contains(allowed, s) {
			return &PreconditionError{
				Reason: fmt.Sprintf("Invalid value for `%s`.", argName),
			}
		}
	}

	if c.Cooldown != nil {
		key := qualifiedName(cmd.Namespace, cmd.Sub) + "/" + req.GuildID.String() + "/" + req.UserID.String()
		if ok, wait := r.limits.take(key, *c.Cooldown); !ok {
			return &RateLimitedError{Wait: wait}
		}
	}
	return nil
}

// invoke runs the handler with panic capture. A panic is contained to
// this invocation: it is logged with a stack and the user gets the
// same generic failure notice as for an unexpected error.
func (r *Router) invoke(ctx context.Context, name string, inv *Invocation) {
	var err error
	func() {
		defer func() {
			if v := recover(); v != nil {
				r.logger.Error("command handler panicked",
					"command", name,
					"guild", inv.GuildID,
					"user", inv.UserID,
					"panic", v,
					"stack", string(debug.Stack()))
				err = fmt.Errorf("command: handler for %q panicked: %v", name, v)
			}
		}()
		err = inv.Command.Handler(ctx, inv)
	}()

	if err == nil {
		if !inv.reply.didReply() {
			r.logger.Warn("command handler returned without replying", "command", name)
		}
		return
	}

	r.logger.Error("command failed",
		"command", name,
		"guild", inv.GuildID,
		"user", inv.UserID,
		"error", err)

	if inv.reply.didReply() {
		return
	}
	msg := userMessage(err)
	if rErr := inv.reply.Reply(ctx, platform.Outgoing{Content: msg}); rErr != nil {
		r.logger.Error("sending failure reply", "command", name, "error", rErr)
	}
}

// refuse handles constraint failures: log at debug (these are routine)
// and tell the user why.
func (r *Router) refuse(ctx context.Context, reply *Reply, name string, cause error, msg string) {
	r.logger.Debug("command refused", "command", name, "reason", cause)
	if err := reply.Reply(ctx, platform.Outgoing{Content: msg}); err != nil {
		r.logger.Error("sending refusal reply", "command", name, "error", err)
	}
}

// userMessage maps a handler error onto what the invoking user sees.
// Taxonomy errors carry their own phrasing; anything else gets a
// generic notice so internals never leak into chat.
func userMessage(err error) string {
	var pre *PreconditionError
	if errors.As(err, &pre) {
		return pre.Reason
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return fmt.Sprintf("Slow down. Try again in %s.", rl.Wait.Round(timeRound))
	}
	return "Something went wrong running that command."
}
