// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
)

var eightBallAnswers = []string{
	"It is certain.",
	"Without a doubt.",
	"Most likely.",
	"Signs point to yes.",
	"Ask again later.",
	"Better not tell you now.",
	"Don't count on it.",
	"My sources say no.",
	"Very doubtful.",
}

// Fun holds the throwaway toy commands.
type Fun struct {
	// roll produces a number in [1, n]. Swappable for tests.
	roll func(n int64) int64
}

// NewFun returns the fun bundle.
func NewFun() *Fun {
	return &Fun{roll: func(n int64) int64 { return rand.Int64N(n) + 1 }}
}

func (*Fun) Name() string { return "fun" }

func (f *Fun) Setup(_ context.Context, reg *extension.Registry) error {
	reg.Register(&command.Command{
		Namespace:   "fun",
		Sub:         "dice",
		Description: "Roll a die, six-sided unless told otherwise.",
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			sides := int64(6)
			if n, ok := inv.IntArg("sides"); ok {
				if n < 2 {
					return &command.PreconditionError{Reason: "A die needs at least two sides."}
				}
				sides = n
			}
			return inv.Replyf(ctx, "🎲 You rolled a %d (d%d).", f.roll(sides), sides)
		},
	})
	reg.Register(&command.Command{
		Namespace:   "fun",
		Sub:         "coinflip",
		Description: "Flip a coin.",
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			side := "Heads"
			if f.roll(2) == 2 {
				side = "Tails"
			}
			return inv.Replyf(ctx, "🪙 %s!", side)
		},
	})
	reg.Register(&command.Command{
		Namespace:   "fun",
		Sub:         "8ball",
		Description: "Consult the magic eight ball.",
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			question, ok := inv.StringArg("question")
			if !ok || strings.TrimSpace(question) == "" {
				return &command.PreconditionError{Reason: "You have to ask a question."}
			}
			answer := eightBallAnswers[f.roll(int64(len(eightBallAnswers)))-1]
			return inv.Replyf(ctx, "🎱 %s", answer)
		},
	})
	return nil
}
