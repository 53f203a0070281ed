// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/ref"
)

// The settings members may change about themselves.
var userSettings = []string{SettingLevelUpNotify}

// The settings admins may change about the server.
var serverSettings = []string{"welcome-message", "log-verbosity"}

// Settings stores per-user and per-server options.
type Settings struct{}

// NewSettings returns the settings bundle.
func NewSettings() *Settings { return &Settings{} }

func (*Settings) Name() string { return "settings" }

func (s *Settings) Setup(_ context.Context, reg *extension.Registry) error {
	reg.Register(&command.Command{
		Namespace:   "options",
		Sub:         "update",
		Description: "Change one of your personal settings.",
		Constraints: command.Constraints{
			Choices: map[string][]string{"setting": userSettings},
		},
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			setting, value, err := settingArgs(inv)
			if err != nil {
				return err
			}
			if err := reg.Store.UpsertSetting(ctx, inv.UserID, setting, value); err != nil {
				return err
			}
			return inv.Replyf(ctx, "Your `%s` setting is now `%s`.", setting, value)
		},
	})
	reg.Register(&command.Command{
		Namespace:   "server-options",
		Sub:         "update",
		Description: "Change one of this server's settings.",
		Constraints: command.Constraints{
			GuildOnly:  true,
			Permission: platform.PermissionAdministrator,
			Choices:    map[string][]string{"setting": serverSettings},
		},
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			setting, value, err := settingArgs(inv)
			if err != nil {
				return err
			}
			// Server settings share the user_settings table, keyed by
			// the guild's snowflake as the subject.
			subject := ref.UserIDFrom(inv.GuildID.Uint64())
			if err := reg.Store.UpsertSetting(ctx, subject, setting, value); err != nil {
				return err
			}
			return inv.Replyf(ctx, "The server's `%s` setting is now `%s`.", setting, value)
		},
	})
	return nil
}

func settingArgs(inv *command.Invocation) (string, string, error) {
	setting, ok := inv.StringArg("setting")
	if !ok {
		return "", "", &command.PreconditionError{Reason: "Tell me which setting."}
	}
	value, ok := inv.StringArg("value")
	if !ok || value == "" {
		return "", "", &command.PreconditionError{Reason: "Tell me the new value."}
	}
	return setting, value, nil
}
