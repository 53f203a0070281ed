// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundles holds the standard feature bundles: the event
// subscriptions and slash commands that make guildbot do anything.
// Each bundle is self-contained glue over the shared services in
// extension.Deps; the binary decides which ones to load.
package bundles

import (
	"fmt"
	"time"

	"github.com/guildbot-project/guildbot/ref"
)

// sendTimeout bounds platform sends made off the event path.
const sendTimeout = 10 * time.Second

// mention renders a user as a chat mention.
func mention(id ref.UserID) string {
	return fmt.Sprintf("<@%s>", id)
}

// channelMention renders a channel reference.
func channelMention(id ref.ChannelID) string {
	return fmt.Sprintf("<#%s>", id)
}
