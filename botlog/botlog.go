// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Package botlog broadcasts lifecycle notices to operator log
// channels.
//
// Guilds opt in by binding a channel to the bot-logs purpose. Startup
// sends a short notice to every bound channel; shutdown additionally
// attaches the compressed session log with a small manifest so an
// operator can pull diagnostics straight out of chat.
package botlog

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/lib/codec"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/ref"
)

// Manifest describes one bot session. It rides along with the
// shutdown broadcast as a CBOR attachment.
type Manifest struct {
	StartedAt time.Time     `cbor:"started_at"`
	StoppedAt time.Time     `cbor:"stopped_at"`
	Uptime    time.Duration `cbor:"uptime"`
	Version   string        `cbor:"version"`
}

// Broadcaster sends lifecycle notices to every bot-logs channel.
type Broadcaster struct {
	client   platform.Client
	purposes *purpose.Service
	logger   *slog.Logger
	clk      clock.Clock

	version string
	logPath string
	started time.Time
}

// Config holds the collaborators for a Broadcaster. LogPath may be
// empty when there is no session log to attach.
type Config struct {
	Client   platform.Client
	Purposes *purpose.Service
	Logger   *slog.Logger
	Clock    clock.Clock
	Version  string
	LogPath  string
}

// New returns a Broadcaster. The session start time is taken now.
func New(cfg Config) *Broadcaster {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Broadcaster{
		client:   cfg.Client,
		purposes: cfg.Purposes,
		logger:   logger,
		clk:      clk,
		version:  cfg.Version,
		logPath:  cfg.LogPath,
		started:  clk.Now(),
	}
}

// AnnounceStartup tells every bot-logs channel the bot is up.
func (b *Broadcaster) AnnounceStartup(ctx context.Context) {
	b.broadcast(ctx, platform.Outgoing{
		Content: fmt.Sprintf("guildbot %s is online.", b.version),
	})
}

// AnnounceShutdown tells every bot-logs channel the bot is going
// down, attaching the session manifest and the compressed log.
func (b *Broadcaster) AnnounceShutdown(ctx context.Context) {
	now := b.clk.Now()
	msg := platform.Outgoing{
		Content: fmt.Sprintf("guildbot %s is shutting down after %s.",
			b.version, now.Sub(b.started).Round(time.Second)),
	}

	manifest, err := codec.Marshal(Manifest{
		StartedAt: b.started,
		StoppedAt: now,
		Uptime:    now.Sub(b.started),
		Version:   b.version,
	})
	if err != nil {
		b.logger.Error("encoding session manifest", "error", err)
	} else {
		msg.Attachments = append(msg.Attachments, platform.Attachment{
			Filename: "session.cbor",
			Data:     manifest,
		})
	}

	if logData, err := b.compressedLog(); err != nil {
		b.logger.Warn("session log not attached", "path", b.logPath, "error", err)
	} else if logData != nil {
		msg.Attachments = append(msg.Attachments, platform.Attachment{
			Filename: "session.log.gz",
			Data:     logData,
		})
	}

	b.broadcast(ctx, msg)
}

// compressedLog gzips the session log file. Returns nil data when no
// log path is configured.
func (b *Broadcaster) compressedLog() ([]byte, error) {
	if b.logPath == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(b.logPath)
	if err != nil {
		return nil, fmt.Errorf("botlog: reading session log: %w", err)
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("botlog: compressing session log: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("botlog: compressing session log: %w", err)
	}
	return buf.Bytes(), nil
}

// broadcast sends msg to every bot-logs binding. Per-channel failures
// are logged and do not stop the rest.
func (b *Broadcaster) broadcast(ctx context.Context, msg platform.Outgoing) {
	bindings, err := b.purposes.BindingsEverywhere(ctx, purpose.BotLogs)
	if err != nil {
		b.logger.Error("resolving bot-log channels", "error", err)
		return
	}
	if len(bindings) == 0 {
		return
	}

	delivered := 0
	for _, binding := range bindings {
		channelID := ref.ChannelIDFrom(binding.ObjectID)
		if _, err := b.client.SendMessage(ctx, channelID, msg); err != nil {
			b.logger.Warn("lifecycle notice not delivered",
				"guild", binding.GuildID, "channel", channelID, "error", err)
			continue
		}
		delivered++
	}
	b.logger.Info("lifecycle notice broadcast",
		"channels", len(bindings), "delivered", delivered)
}
