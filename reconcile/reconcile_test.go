// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile_test

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/platform/platformtest"
	"github.com/guildbot-project/guildbot/reconcile"
	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
)

var (
	testGuild  = ref.GuildIDFrom(1000)
	testMember = ref.UserIDFrom(2000)
)

func newTestReconciler(t *testing.T) (*reconcile.Reconciler, *store.Store, *platformtest.FakeClient) {
	t.Helper()
	s, err := store.Open(store.Config{
		Path:  filepath.Join(t.TempDir(), "guildbot.db"),
		Clock: clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	client := platformtest.NewFakeClient()
	r := reconcile.New(reconcile.Config{
		Store:  s,
		Client: client,
		Logger: slog.New(slog.DiscardHandler),
		Clock:  clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
	return r, s, client
}

func TestRegisterMemberIdempotentUnderConcurrency(t *testing.T) {
	r, s, _ := newTestReconciler(t)
	ctx := context.Background()

	const goroutines = 16
	var wg sync.WaitGroup
	errs := make(chan error, goroutines)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.RegisterMember(ctx, testMember, testGuild)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("RegisterMember: %v", err)
		}
	}

	bal, err := s.GetBalance(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Amount != 0 || !bal.Active {
		t.Errorf("balance = %+v, want amount 0 active", bal)
	}
	if _, err := s.GetExperience(ctx, testMember, testGuild); err != nil {
		t.Fatalf("GetExperience: %v", err)
	}
}

func TestReconcileGuildRegistersRoster(t *testing.T) {
	r, s, client := newTestReconciler(t)
	ctx := context.Background()

	human := ref.UserIDFrom(2001)
	bot := ref.UserIDFrom(2002)
	client.AddGuild(testGuild,
		platform.Member{UserID: human},
		platform.Member{UserID: bot, Bot: true},
	)

	if err := r.ReconcileGuild(ctx, testGuild); err != nil {
		t.Fatalf("ReconcileGuild: %v", err)
	}

	if _, err := s.GetBalance(ctx, human, testGuild); err != nil {
		t.Errorf("human not registered: %v", err)
	}
	if _, err := s.GetBalance(ctx, bot, testGuild); !errors.Is(err, store.ErrEmptyResult) {
		t.Errorf("bot registered, GetBalance err = %v", err)
	}

	// A second sweep changes nothing.
	if err := r.ReconcileGuild(ctx, testGuild); err != nil {
		t.Fatalf("second ReconcileGuild: %v", err)
	}
}

func TestReconcileGuildReactivatesReturningMember(t *testing.T) {
	r, s, client := newTestReconciler(t)
	ctx := context.Background()

	if err := r.RegisterMember(ctx, testMember, testGuild); err != nil {
		t.Fatalf("RegisterMember: %v", err)
	}
	if err := r.MemberLeft(ctx, testMember, testGuild); err != nil {
		t.Fatalf("MemberLeft: %v", err)
	}
	bal, err := s.GetBalance(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Active {
		t.Fatal("balance still active after leave")
	}

	// The member is back on the roster at the next sweep.
	client.AddGuild(testGuild, platform.Member{UserID: testMember})
	if err := r.ReconcileGuild(ctx, testGuild); err != nil {
		t.Fatalf("ReconcileGuild: %v", err)
	}
	bal, err = s.GetBalance(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.Active {
		t.Error("balance not reactivated by sweep")
	}
}

func TestReconcileAllContinuesPastGuildFailure(t *testing.T) {
	r, s, client := newTestReconciler(t)
	ctx := context.Background()

	good := ref.GuildIDFrom(1001)
	bad := ref.GuildIDFrom(1002)
	client.AddGuild(bad)
	client.AddGuild(good, platform.Member{UserID: testMember})

	// Per-guild failures are logged, not returned.
	client.Fail["GuildRoster"] = errors.New("gateway hiccup")
	if err := r.ReconcileAll(ctx); err != nil {
		t.Fatalf("ReconcileAll with failing rosters: %v", err)
	}

	delete(client.Fail, "GuildRoster")
	if err := r.ReconcileAll(ctx); err != nil {
		t.Fatalf("ReconcileAll: %v", err)
	}
	if _, err := s.GetBalance(ctx, testMember, good); err != nil {
		t.Errorf("member not registered after recovery: %v", err)
	}
}

func TestMemberLifecycle(t *testing.T) {
	r, s, _ := newTestReconciler(t)
	ctx := context.Background()

	if err := r.MemberJoined(ctx, testMember, testGuild); err != nil {
		t.Fatalf("MemberJoined: %v", err)
	}
	if err := s.Delta(ctx, "balances", testMember, testGuild, 40); err != nil {
		t.Fatalf("Delta: %v", err)
	}
	if err := s.Delta(ctx, "member_levels", testMember, testGuild, 70); err != nil {
		t.Fatalf("Delta: %v", err)
	}

	if err := r.MemberLeft(ctx, testMember, testGuild); err != nil {
		t.Fatalf("MemberLeft: %v", err)
	}
	bal, err := s.GetBalance(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.Active {
		t.Error("balance active after leave")
	}
	if bal.Amount != 40 {
		t.Errorf("balance = %d after leave, want 40 retained", bal.Amount)
	}
	if _, err := s.GetExperience(ctx, testMember, testGuild); !errors.Is(err, store.ErrEmptyResult) {
		t.Errorf("level record after leave, GetExperience err = %v", err)
	}

	// Rejoin: balance is back with its money, experience starts over.
	if err := r.MemberJoined(ctx, testMember, testGuild); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	bal, err = s.GetBalance(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if !bal.Active || bal.Amount != 40 {
		t.Errorf("balance after rejoin = %+v, want 40 active", bal)
	}
	rec, err := s.GetExperience(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetExperience after rejoin: %v", err)
	}
	if rec.Experience != 0 {
		t.Errorf("experience after rejoin = %d, want 0", rec.Experience)
	}
}

func TestMemberLeftUnknownMemberIsNoop(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	if err := r.MemberLeft(context.Background(), ref.UserIDFrom(9999), testGuild); err != nil {
		t.Fatalf("MemberLeft for unknown member: %v", err)
	}
}

func TestApplyDeltaRegistersMissingMember(t *testing.T) {
	r, s, _ := newTestReconciler(t)
	ctx := context.Background()

	// No record exists yet: the delta self-heals by registering.
	if err := r.ApplyDelta(ctx, testMember, testGuild, "member_levels", 35); err != nil {
		t.Fatalf("ApplyDelta: %v", err)
	}
	rec, err := s.GetExperience(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetExperience: %v", err)
	}
	if rec.Experience != 35 {
		t.Errorf("experience = %d, want 35", rec.Experience)
	}

	if err := r.ApplyDelta(ctx, testMember, testGuild, "member_levels", 35); err != nil {
		t.Fatalf("second ApplyDelta: %v", err)
	}
	rec, err = s.GetExperience(ctx, testMember, testGuild)
	if err != nil {
		t.Fatalf("GetExperience: %v", err)
	}
	if rec.Experience != 70 {
		t.Errorf("experience = %d, want 70", rec.Experience)
	}
}

func TestShouldApplySkipsReplay(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	msg := ref.MessageIDFrom(5555)
	apply, err := r.ShouldApply(ctx, "message-created", testGuild, testMember, msg)
	if err != nil {
		t.Fatalf("ShouldApply: %v", err)
	}
	if !apply {
		t.Fatal("first delivery not applied")
	}

	apply, err = r.ShouldApply(ctx, "message-created", testGuild, testMember, msg)
	if err != nil {
		t.Fatalf("replay ShouldApply: %v", err)
	}
	if apply {
		t.Error("replayed event applied twice")
	}

	// A different message from the same member is a new event.
	apply, err = r.ShouldApply(ctx, "message-created", testGuild, testMember, ref.MessageIDFrom(5556))
	if err != nil {
		t.Fatalf("ShouldApply: %v", err)
	}
	if !apply {
		t.Error("distinct message treated as replay")
	}
}
