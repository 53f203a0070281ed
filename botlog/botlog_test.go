// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package botlog_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/guildbot-project/guildbot/botlog"
	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/lib/codec"
	"github.com/guildbot-project/guildbot/platform/platformtest"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/ref"
	"github.com/guildbot-project/guildbot/store"
)

func newBroadcaster(t *testing.T, logPath string) (*botlog.Broadcaster, *platformtest.FakeClient, *clock.FakeClock) {
	t.Helper()
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

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

	table, err := purpose.Load()
	if err != nil {
		t.Fatalf("purpose.Load: %v", err)
	}
	purposes, err := purpose.NewService(ctx, table, s)
	if err != nil {
		t.Fatalf("purpose.NewService: %v", err)
	}
	for i, guild := range []ref.GuildID{ref.GuildIDFrom(1000), ref.GuildIDFrom(1001)} {
		if err := s.EnsureGuild(ctx, guild); err != nil {
			t.Fatalf("EnsureGuild: %v", err)
		}
		if _, err := purposes.Bind(ctx, purpose.BotLogs, uint64(4000+i), guild); err != nil {
			t.Fatalf("Bind: %v", err)
		}
	}

	client := platformtest.NewFakeClient()
	b := botlog.New(botlog.Config{
		Client:   client,
		Purposes: purposes,
		Logger:   slog.New(slog.DiscardHandler),
		Clock:    clk,
		Version:  "v1.2.3",
		LogPath:  logPath,
	})
	return b, client, clk
}

func TestStartupBroadcastReachesAllBindings(t *testing.T) {
	b, client, _ := newBroadcaster(t, "")

	b.AnnounceStartup(context.Background())
	sent := client.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	channels := map[ref.ChannelID]bool{}
	for _, msg := range sent {
		channels[msg.ChannelID] = true
		if got := msg.Message.Content; got != "guildbot v1.2.3 is online." {
			t.Errorf("content = %q", got)
		}
	}
	if !channels[ref.ChannelIDFrom(4000)] || !channels[ref.ChannelIDFrom(4001)] {
		t.Errorf("channels reached = %v", channels)
	}
}

func TestStartupBroadcastSurvivesSendFailure(t *testing.T) {
	b, client, _ := newBroadcaster(t, "")

	// Every send fails; the broadcast must not panic or stop early,
	// and a later broadcast still goes through.
	client.Fail["SendMessage"] = errors.New("rate limited")
	b.AnnounceStartup(context.Background())
	if got := len(client.Sent()); got != 0 {
		t.Fatalf("sent %d with failing client", got)
	}

	delete(client.Fail, "SendMessage")
	b.AnnounceStartup(context.Background())
	if got := len(client.Sent()); got != 2 {
		t.Errorf("sent %d after recovery, want 2", got)
	}
}

func TestShutdownAttachesManifestAndLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "session.log")
	logContent := "level=INFO msg=\"guildbot starting\"\nlevel=INFO msg=\"shutting down\"\n"
	if err := os.WriteFile(logPath, []byte(logContent), 0o600); err != nil {
		t.Fatal(err)
	}
	b, client, clk := newBroadcaster(t, logPath)

	clk.Advance(90 * time.Minute)
	b.AnnounceShutdown(context.Background())

	sent := client.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sent))
	}
	msg := sent[0].Message
	if len(msg.Attachments) != 2 {
		t.Fatalf("attachments = %d, want manifest + log", len(msg.Attachments))
	}

	var manifest botlog.Manifest
	if err := codec.Unmarshal(msg.Attachments[0].Data, &manifest); err != nil {
		t.Fatalf("decoding manifest: %v", err)
	}
	if manifest.Uptime != 90*time.Minute {
		t.Errorf("uptime = %s, want 90m", manifest.Uptime)
	}
	if manifest.Version != "v1.2.3" {
		t.Errorf("version = %q", manifest.Version)
	}

	zr, err := gzip.NewReader(bytes.NewReader(msg.Attachments[1].Data))
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if string(raw) != logContent {
		t.Errorf("log roundtrip = %q", raw)
	}
}

func TestShutdownWithoutLogStillBroadcasts(t *testing.T) {
	b, client, _ := newBroadcaster(t, "")

	b.AnnounceShutdown(context.Background())
	sent := client.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d, want 2", len(sent))
	}
	if got := len(sent[0].Message.Attachments); got != 1 {
		t.Errorf("attachments = %d, want manifest only", got)
	}
}
