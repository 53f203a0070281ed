// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package purpose

import (
	"context"
	"errors"
	"fmt"

	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
)

// ErrUnknownPurpose reports a purpose ID that is not in the frozen
// table.
var ErrUnknownPurpose = errors.New("purpose: unknown purpose")

// ErrNotBound is returned by Resolve when a guild has no binding for
// the purpose.
var ErrNotBound = errors.New("purpose: not bound in this guild")

// Service manages per-guild purpose bindings against the store,
// validating every purpose ID against the frozen table.
type Service struct {
	table *Table
	store *store.Store
}

// NewService builds a Service and verifies the store is reachable, so
// startup fails loudly instead of discovering a broken store on the
// first command.
func NewService(ctx context.Context, table *Table, st *store.Store) (*Service, error) {
	if _, err := st.Guilds(ctx); err != nil {
		return nil, fmt.Errorf("purpose: store unreachable: %w", err)
	}
	return &Service{table: table, store: st}, nil
}

// Table returns the frozen purpose table.
func (s *Service) Table() *Table { return s.table }

// Bind assigns a purpose to an object in a guild. Binding the same
// pair twice is a no-op; returns true when a new binding was created.
func (s *Service) Bind(ctx context.Context, purposeID string, objectID uint64, guildID ref.GuildID) (bool, error) {
	if _, ok := s.table.Lookup(purposeID); !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPurpose, purposeID)
	}
	return s.store.BindPurpose(ctx, purposeID, objectID, guildID)
}

// Unbind removes a binding. A missing binding is store.ErrEmptyResult.
func (s *Service) Unbind(ctx context.Context, purposeID string, objectID uint64) error {
	if _, ok := s.table.Lookup(purposeID); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPurpose, purposeID)
	}
	return s.store.UnbindPurpose(ctx, purposeID, objectID)
}

// List returns a guild's bindings.
func (s *Service) List(ctx context.Context, guildID ref.GuildID) ([]store.Binding, error) {
	return s.store.ListBindings(ctx, guildID)
}

// Resolve returns the object bound to a purpose in a guild. When
// multiple objects are bound, the lowest ID wins so resolution is
// stable. ErrNotBound when the guild has no binding.
func (s *Service) Resolve(ctx context.Context, guildID ref.GuildID, purposeID string) (uint64, error) {
	if _, ok := s.table.Lookup(purposeID); !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownPurpose, purposeID)
	}
	objects, err := s.store.ResolveBindings(ctx, guildID, purposeID)
	if err != nil {
		return 0, err
	}
	if len(objects) == 0 {
		return 0, fmt.Errorf("%w: %q in %s", ErrNotBound, purposeID, guildID)
	}
	return objects[0], nil
}

// ResolveAll returns every object bound to a purpose in a guild, for
// broadcasts that target all bound channels.
func (s *Service) ResolveAll(ctx context.Context, guildID ref.GuildID, purposeID string) ([]uint64, error) {
	if _, ok := s.table.Lookup(purposeID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purposeID)
	}
	return s.store.ResolveBindings(ctx, guildID, purposeID)
}

// BindingsEverywhere returns every binding of a purpose across all
// guilds.
func (s *Service) BindingsEverywhere(ctx context.Context, purposeID string) ([]store.Binding, error) {
	if _, ok := s.table.Lookup(purposeID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPurpose, purposeID)
	}
	return s.store.BindingsForPurpose(ctx, purposeID)
}
