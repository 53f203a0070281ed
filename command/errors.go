// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"time"
)

// UnknownCommandError reports a dispatch for a (namespace, sub) pair
// with no registration. The user sees "not found"; no handler runs.
type UnknownCommandError struct {
	Namespace string
	Sub       string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", qualifiedName(e.Namespace, e.Sub))
}

// PreconditionError reports a failed guild-only, permission, or
// choice constraint. Reason is shown to the invoking user verbatim.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Reason
}

// RateLimitedError reports an empty cooldown bucket. Wait is the
// remaining time until one token becomes available; always positive.
type RateLimitedError struct {
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.Wait.Round(time.Second))
}

// ErrReplyUsed is returned by Reply when an initial response was
// already produced for the invocation.
var ErrReplyUsed = errRepliedAlready{}

type errRepliedAlready struct{}

func (errRepliedAlready) Error() string { return "command: initial reply already sent" }

// ErrTokenExpired is returned by Followup when the correlation token
// timed out and was discarded.
var ErrTokenExpired = errTokenExpired{}

type errTokenExpired struct{}

func (errTokenExpired) Error() string { return "command: followup token expired" }
