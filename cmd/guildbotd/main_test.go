// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/gateway"
	"github.com/guildbot-project/guildbot/lib/testutil"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/platform/platformtest"
	"github.com/guildbot-project/guildbot/ref"
)

// testConn is a gateway.Conn over the fake client. Run publishes a
// ready event and then blocks until the daemon shuts down.
type testConn struct {
	client   *platformtest.FakeClient
	resolver stubResolver

	mu       sync.Mutex
	declared []*command.Command
	closed   bool
}

func (c *testConn) Client() platform.Client { return c.client }

func (c *testConn) Resolver() platform.TrackResolver { return c.resolver }

func (c *testConn) DeclareCommands(_ context.Context, cmds []*command.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.declared = cmds
	return nil
}

func (c *testConn) Run(ctx context.Context, sink gateway.Sink) error {
	sink.Event(ctx, platform.Event{Kind: platform.EventReady})
	<-ctx.Done()
	return ctx.Err()
}

func (c *testConn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

type stubResolver struct{}

func (stubResolver) ResolveTrack(_ context.Context, query string) (platform.Track, error) {
	return platform.Track{Title: query}, nil
}

// writeDeployment lays out a config file, token file, and root
// directory under a temp dir and returns the config path.
func writeDeployment(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	tokenPath := filepath.Join(root, "token")
	if err := os.WriteFile(tokenPath, []byte("test-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, "guildbot.yaml")
	cfg := fmt.Sprintf(`environment: development
paths:
  root: %s
platform:
  token_file: %s
  transport: fake
`, root, tokenPath)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func TestRunStartupAndShutdown(t *testing.T) {
	cfgPath := writeDeployment(t)

	conn := &testConn{client: platformtest.NewFakeClient()}
	conn.client.AddGuild(ref.GuildIDFrom(1000))
	connect := func(_ context.Context, name string, cfg gateway.Config) (gateway.Conn, error) {
		if name != "fake" {
			t.Errorf("expected transport fake, got %q", name)
		}
		if cfg.Token != "test-token" {
			t.Errorf("expected trimmed token, got %q", cfg.Token)
		}
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", cfgPath}, connect)
	}()

	// Wait for activation to finish: DeclareCommands runs after every
	// bundle is up.
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.mu.Lock()
		declared := len(conn.declared)
		conn.mu.Unlock()
		if declared > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon never declared commands")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "daemon did not shut down"); err != nil {
		t.Fatalf("run: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	if !conn.closed {
		t.Error("expected the gateway connection to be closed")
	}
	var sawMoney, sawTicket bool
	for _, cmd := range conn.declared {
		switch cmd.Namespace {
		case "money":
			sawMoney = true
		case "ticket":
			sawTicket = true
		}
	}
	if !sawMoney || !sawTicket {
		t.Errorf("expected money and ticket commands declared, got %d commands", len(conn.declared))
	}
}

func TestRunHonorsDisabledBundles(t *testing.T) {
	root := t.TempDir()
	tokenPath := filepath.Join(root, "token")
	if err := os.WriteFile(tokenPath, []byte("test-token"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, "guildbot.yaml")
	cfg := fmt.Sprintf(`environment: development
paths:
  root: %s
platform:
  token_file: %s
  transport: fake
bundles:
  disabled: [fun, music]
`, root, tokenPath)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	conn := &testConn{client: platformtest.NewFakeClient()}
	connect := func(_ context.Context, _ string, _ gateway.Config) (gateway.Conn, error) {
		return conn, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, []string{"--config", cfgPath}, connect)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		conn.mu.Lock()
		declared := len(conn.declared)
		conn.mu.Unlock()
		if declared > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("daemon never declared commands")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := testutil.RequireReceive(t, done, 10*time.Second, "daemon did not shut down"); err != nil {
		t.Fatalf("run: %v", err)
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, cmd := range conn.declared {
		if cmd.Namespace == "fun" || cmd.Namespace == "music" {
			t.Errorf("disabled bundle command %s %s was declared", cmd.Namespace, cmd.Sub)
		}
	}
}

func TestRunVersionFlag(t *testing.T) {
	err := run(context.Background(), []string{"--version"}, func(context.Context, string, gateway.Config) (gateway.Conn, error) {
		t.Fatal("version flag must not dial the platform")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("run --version: %v", err)
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, "guildbot.yaml")
	// No token file configured.
	cfg := fmt.Sprintf("environment: development\npaths:\n  root: %s\n", root)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	err := run(context.Background(), []string{"--config", cfgPath}, func(context.Context, string, gateway.Config) (gateway.Conn, error) {
		t.Fatal("invalid config must not dial the platform")
		return nil, nil
	})
	if err == nil {
		t.Fatal("expected a validation error")
	}
}
