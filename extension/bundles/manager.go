// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package bundles

import (
	"context"
	"strings"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/platform"
)

// Manager is the bundle that manages the other bundles. The loader
// activates it first and never bulk-unloads it, so these commands
// stay available even after everything else is torn down.
type Manager struct {
	loader *extension.Loader
}

// NewManager returns the manager bundle for the given loader.
func NewManager(loader *extension.Loader) *Manager {
	return &Manager{loader: loader}
}

func (*Manager) Name() string { return "manager" }

func (m *Manager) Setup(_ context.Context, reg *extension.Registry) error {
	admin := command.Constraints{Permission: platform.PermissionAdministrator, GuildOnly: true}

	reg.Register(&command.Command{
		Namespace:   "ext",
		Sub:         "list",
		Description: "List the active bundles.",
		Constraints: admin,
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			return inv.Replyf(ctx, "Active bundles: %s.", strings.Join(m.loader.Active(), ", "))
		},
	})
	reg.Register(&command.Command{
		Namespace:   "ext",
		Sub:         "unload",
		Description: "Unload one bundle.",
		Constraints: admin,
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			name, ok := inv.StringArg("bundle")
			if !ok {
				return &command.PreconditionError{Reason: "Tell me which bundle to unload."}
			}
			if name == m.Name() {
				return &command.PreconditionError{Reason: "The manager cannot unload itself."}
			}
			m.loader.Unload(name)
			return inv.Replyf(ctx, "Bundle `%s` unloaded.", name)
		},
	})
	reg.Register(&command.Command{
		Namespace:   "ext",
		Sub:         "unload-all",
		Description: "Unload every bundle except the manager.",
		Constraints: admin,
		Handler: func(ctx context.Context, inv *command.Invocation) error {
			m.loader.UnloadAll()
			return inv.Replyf(ctx, "All bundles unloaded. Only the manager remains.")
		},
	})
	return nil
}
