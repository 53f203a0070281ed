// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package purpose maps platform objects to the roles they play for
// the bot.
//
// The set of purposes is fixed at build time: definitions live in an
// embedded JSONC seed and are parsed once at startup into an
// immutable [Table]. What varies per guild is which objects are bound
// to each purpose; those bindings live in the store and are managed
// through [Service].
package purpose

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"
)

//go:embed seed.jsonc
var seed []byte

// Kind is the class of platform object a purpose binds to.
type Kind string

const (
	KindCategory Kind = "category"
	KindChannel  Kind = "channel"
	KindRole     Kind = "role"
)

// Well-known purpose IDs referenced by the bot itself. They must
// exist in the seed; Load enforces that.
const (
	BotLogs       = "bot-logs"
	GuildLogs     = "guild-logs"
	Tickets       = "tickets"
	ModeratorRole = "moderator"
)

// Definition is one purpose from the seed.
type Definition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        Kind   `json:"kind"`
	Description string `json:"description"`
}

// Table is the frozen purpose lookup. Immutable after Load.
type Table struct {
	byID    map[string]Definition
	ordered []Definition
}

// Load parses the embedded seed. Called once at startup; any defect
// in the seed is a build problem surfaced as a hard error, never a
// partially loaded table.
func Load() (*Table, error) {
	var defs []Definition
	if err := json.Unmarshal(jsonc.ToJSON(seed), &defs); err != nil {
		return nil, fmt.Errorf("purpose: parsing seed: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("purpose: seed defines no purposes")
	}

	table := &Table{
		byID:    make(map[string]Definition, len(defs)),
		ordered: defs,
	}
	for _, def := range defs {
		if def.ID == "" {
			return nil, fmt.Errorf("purpose: seed entry %q has no id", def.Name)
		}
		switch def.Kind {
		case KindCategory, KindChannel, KindRole:
		default:
			return nil, fmt.Errorf("purpose: %q has unknown kind %q", def.ID, def.Kind)
		}
		if _, dup := table.byID[def.ID]; dup {
			return nil, fmt.Errorf("purpose: duplicate id %q in seed", def.ID)
		}
		table.byID[def.ID] = def
	}

	for _, required := range []string{BotLogs, GuildLogs, Tickets, ModeratorRole} {
		if _, ok := table.byID[required]; !ok {
			return nil, fmt.Errorf("purpose: seed is missing required purpose %q", required)
		}
	}
	return table, nil
}

// Lookup returns the definition for a purpose ID.
func (t *Table) Lookup(id string) (Definition, bool) {
	def, ok := t.byID[id]
	return def, ok
}

// Definitions returns all purposes in seed order.
func (t *Table) Definitions() []Definition {
	out := make([]Definition, len(t.ordered))
	copy(out, t.ordered)
	return out
}
