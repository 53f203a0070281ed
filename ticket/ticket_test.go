// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package ticket_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/platform/platformtest"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
	"github.com/guildbot-project/guildbot/ticket"
)

var (
	testGuild    = ref.GuildIDFrom(1000)
	testMember   = ref.UserIDFrom(2000)
	testCategory = ref.ChannelIDFrom(3000)
)

type fixture struct {
	service *ticket.Service
	client  *platformtest.FakeClient
	clk     *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clk := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s, err := store.Open(store.Config{
		Path:  filepath.Join(t.TempDir(), "guildbot.db"),
		Clock: clk,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	ctx := context.Background()
	if err := s.EnsureGuild(ctx, testGuild); err != nil {
		t.Fatalf("EnsureGuild: %v", err)
	}

	table, err := purpose.Load()
	if err != nil {
		t.Fatalf("purpose.Load: %v", err)
	}
	purposes, err := purpose.NewService(ctx, table, s)
	if err != nil {
		t.Fatalf("purpose.NewService: %v", err)
	}
	if _, err := purposes.Bind(ctx, purpose.Tickets, testCategory.Uint64(), testGuild); err != nil {
		t.Fatalf("Bind tickets category: %v", err)
	}
	if _, err := purposes.Bind(ctx, purpose.GuildLogs, 3500, testGuild); err != nil {
		t.Fatalf("Bind guild logs: %v", err)
	}

	client := platformtest.NewFakeClient()
	client.AddGuild(testGuild)
	service := ticket.NewService(ticket.Config{
		Store:      s,
		Client:     client,
		Purposes:   purposes,
		Logger:     slog.New(slog.DiscardHandler),
		Clock:      clk,
		CloseGrace: 30 * time.Second,
	})
	return &fixture{service: service, client: client, clk: clk}
}

func TestOpenCreatesRecordAndChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.service.Open(ctx, testGuild, testMember, "cannot access the archive")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if tk.Status != store.TicketOpen {
		t.Errorf("status = %s, want open", tk.Status)
	}
	if tk.ChannelID.IsZero() {
		t.Fatal("no channel bound")
	}

	created := f.client.CreatedChannels()
	if len(created) != 1 {
		t.Fatalf("created %d channels, want 1", len(created))
	}
	wantName := fmt.Sprintf("ticket-%d", tk.ID)
	if created[0].Name != wantName {
		t.Errorf("channel name = %q, want %q", created[0].Name, wantName)
	}
	if created[0].ParentID != testCategory {
		t.Errorf("channel parent = %s, want %s", created[0].ParentID, testCategory)
	}
}

func TestOpenTwiceIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Open(ctx, testGuild, testMember, "first")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	second, err := f.service.Open(ctx, testGuild, testMember, "second")
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second open made ticket %d, want existing %d", second.ID, first.ID)
	}
	if len(f.client.CreatedChannels()) != 1 {
		t.Errorf("created %d channels, want 1", len(f.client.CreatedChannels()))
	}
}

func TestOpenWithoutCategory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	otherGuild := ref.GuildIDFrom(1001)

	_, err := f.service.Open(ctx, otherGuild, testMember, "lost")
	if !errors.Is(err, ticket.ErrNoCategory) {
		t.Fatalf("Open err = %v, want ErrNoCategory", err)
	}
	if len(f.client.CreatedChannels()) != 0 {
		t.Error("channel created despite missing category")
	}
}

func TestOpenRetriesAfterChannelFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.client.Fail["CreateChannel"] = errors.New("platform down")
	_, err := f.service.Open(ctx, testGuild, testMember, "flaky")
	var external *platform.ExternalError
	if !errors.As(err, &external) {
		t.Fatalf("Open err = %v, want ExternalError", err)
	}

	delete(f.client.Fail, "CreateChannel")
	tk, err := f.service.Open(ctx, testGuild, testMember, "flaky")
	if err != nil {
		t.Fatalf("retry Open: %v", err)
	}
	if tk.ChannelID.IsZero() {
		t.Error("retry did not attach a channel")
	}
	if open, err := f.service.List(ctx, testGuild, store.TicketOpen); err != nil || len(open) != 1 {
		t.Errorf("open tickets = %d (err %v), want 1", len(open), err)
	}
}

func TestCloseDeletesChannelAfterGrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.service.Open(ctx, testGuild, testMember, "resolved soon")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	closed, err := f.service.Close(ctx, testGuild, tk.ID)
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed.Status != store.TicketClosed {
		t.Errorf("status = %s, want closed", closed.Status)
	}
	if len(f.client.DeletedChannels()) != 0 {
		t.Fatal("channel deleted before grace period")
	}

	f.clk.Advance(31 * time.Second)
	deleted := f.client.DeletedChannels()
	if len(deleted) != 1 || deleted[0] != tk.ChannelID {
		t.Errorf("deleted = %v, want [%s]", deleted, tk.ChannelID)
	}
}

func TestCloseSurvivesDeletionFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.service.Open(ctx, testGuild, testMember, "stubborn")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.client.Fail["DeleteChannel"] = errors.New("missing permission")
	if _, err := f.service.Close(ctx, testGuild, tk.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.clk.Advance(31 * time.Second)

	got, err := f.service.Get(ctx, testGuild, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.TicketClosed {
		t.Errorf("status = %s after failed deletion, want closed", got.Status)
	}
	// The failure is reported to the guild log channel.
	sent := f.client.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d messages, want 1 report", len(sent))
	}
	if sent[0].ChannelID != ref.ChannelIDFrom(3500) {
		t.Errorf("report sent to %s, want guild log channel", sent[0].ChannelID)
	}
}

func TestReopenAllocatesFreshChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.service.Open(ctx, testGuild, testMember, "back again")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.service.Close(ctx, testGuild, tk.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	f.clk.Advance(time.Minute)

	reopened, err := f.service.Reopen(ctx, testGuild, tk.ID)
	if err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if reopened.Status != store.TicketOpen {
		t.Errorf("status = %s, want open", reopened.Status)
	}
	if reopened.ChannelID == tk.ChannelID || reopened.ChannelID.IsZero() {
		t.Errorf("reopened channel = %s, want fresh channel (old %s)", reopened.ChannelID, tk.ChannelID)
	}
	if len(f.client.CreatedChannels()) != 2 {
		t.Errorf("created %d channels, want 2", len(f.client.CreatedChannels()))
	}
}

func TestIllegalTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tk, err := f.service.Open(ctx, testGuild, testMember, "machine check")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Reopening an open ticket.
	var invalid *ticket.InvalidStateError
	if _, err := f.service.Reopen(ctx, testGuild, tk.ID); !errors.As(err, &invalid) {
		t.Fatalf("Reopen open ticket err = %v, want InvalidStateError", err)
	}
	if invalid.From != store.TicketOpen || invalid.Action != "reopen" {
		t.Errorf("InvalidStateError = %+v", invalid)
	}

	// Closing twice.
	if _, err := f.service.Close(ctx, testGuild, tk.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := f.service.Close(ctx, testGuild, tk.ID); !errors.As(err, &invalid) {
		t.Fatalf("double Close err = %v, want InvalidStateError", err)
	}

	// Acting on a ticket that does not exist.
	if _, err := f.service.Close(ctx, testGuild, 9999); !errors.Is(err, store.ErrEmptyResult) {
		t.Fatalf("Close missing ticket err = %v, want ErrEmptyResult", err)
	}

	// No mutation from the illegal attempts: exactly one channel was
	// ever created, and the ticket is still closed.
	got, err := f.service.Get(ctx, testGuild, tk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.TicketClosed {
		t.Errorf("status = %s, want closed", got.Status)
	}
	if len(f.client.CreatedChannels()) != 1 {
		t.Errorf("created %d channels, want 1", len(f.client.CreatedChannels()))
	}
}
