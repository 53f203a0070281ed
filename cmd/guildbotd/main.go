// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

// Guildbotd is the guildbot daemon. It connects to the chat platform
// through a gateway adapter, opens the record store, activates the
// extension bundles, and dispatches gateway traffic until SIGINT or
// SIGTERM.
//
// On startup:
//  1. Loads and validates the YAML configuration.
//  2. Opens the SQLite store and freezes the purpose table.
//  3. Dials the platform with the configured transport adapter.
//  4. Activates extension bundles (manager first) and declares the
//     command table to the platform.
//  5. Broadcasts the startup notice to every bot-logs binding.
//  6. Runs the gateway loop and the reconcile schedule until a
//     termination signal arrives.
//
// On shutdown the daemon broadcasts a notice with the compressed
// session log attached, unloads the bundles, disconnects every voice
// session, and closes the store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/guildbot-project/guildbot/botlog"
	"github.com/guildbot-project/guildbot/bus"
	"github.com/guildbot-project/guildbot/command"
	"github.com/guildbot-project/guildbot/extension"
	"github.com/guildbot-project/guildbot/extension/bundles"
	"github.com/guildbot-project/guildbot/gateway"
	"github.com/guildbot-project/guildbot/lib/clock"
	"github.com/guildbot-project/guildbot/lib/config"
	"github.com/guildbot-project/guildbot/lib/cron"
	"github.com/guildbot-project/guildbot/lib/version"
	"github.com/guildbot-project/guildbot/platform"
	"github.com/guildbot-project/guildbot/purpose"
	"github.com/guildbot-project/guildbot/reconcile"
	"github.com/guildbot-project/guildbot/session"
	"github.com/guildbot-project/guildbot/store"
	"github.com/guildbot-project/guildbot/ticket"
)

// shutdownTimeout bounds the graceful teardown: shutdown broadcast,
// bundle unload, and voice disconnects all share it.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(context.Background(), os.Args[1:], gateway.Connect); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, connect func(ctx context.Context, name string, cfg gateway.Config) (gateway.Conn, error)) error {
	var (
		configPath  string
		tokenFile   string
		stateDir    string
		showVersion bool
	)

	flags := pflag.NewFlagSet("guildbotd", pflag.ContinueOnError)
	flags.StringVar(&configPath, "config", "", "path to the config file (overrides GUILDBOT_CONFIG)")
	flags.StringVar(&tokenFile, "token-file", "", "path to the bot token file (overrides platform.token_file)")
	flags.StringVar(&stateDir, "state-dir", "", "state directory (overrides paths.state and re-homes the database)")
	flags.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if showVersion {
		fmt.Printf("guildbotd %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if tokenFile != "" {
		cfg.Platform.TokenFile = tokenFile
	}
	if stateDir != "" {
		cfg.Paths.State = stateDir
		cfg.Store.Path = filepath.Join(stateDir, "guildbot.db")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	token, err := cfg.ReadToken()
	if err != nil {
		return err
	}

	sessionLogPath := filepath.Join(cfg.Paths.Logs, "session.log")
	logFile, err := os.OpenFile(sessionLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer logFile.Close()

	logger := slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stderr, logFile), &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	logger.Info("guildbotd starting",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"transport", cfg.Platform.Transport)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.Real()

	st, err := store.Open(store.Config{
		Path:     cfg.Store.Path,
		PoolSize: cfg.Store.PoolSize,
		Clock:    clk,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	table, err := purpose.Load()
	if err != nil {
		return err
	}
	purposes, err := purpose.NewService(ctx, table, st)
	if err != nil {
		return fmt.Errorf("loading purpose bindings: %w", err)
	}

	conn, err := connect(ctx, cfg.Platform.Transport, gateway.Config{
		Token:  token,
		Shards: cfg.Platform.Shards,
		Logger: logger,
		Clock:  clk,
	})
	if err != nil {
		return fmt.Errorf("connecting to platform: %w", err)
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer closeCancel()
		if err := conn.Close(closeCtx); err != nil {
			logger.Warn("closing gateway connection", "error", err)
		}
	}()
	client := conn.Client()

	hub := bus.New(logger)
	router := command.NewRouter(logger, clk)
	sessions := session.NewRegistry(session.RegistryConfig{
		Logger:      logger,
		Clock:       clk,
		IdleTimeout: cfg.SessionIdleTimeout(),
	})

	reconciler := reconcile.New(reconcile.Config{
		Store:  st,
		Client: client,
		Logger: logger,
		Clock:  clk,
	})
	reconciler.Attach(hub)

	tickets := ticket.NewService(ticket.Config{
		Store:      st,
		Client:     client,
		Purposes:   purposes,
		Logger:     logger,
		Clock:      clk,
		CloseGrace: cfg.TicketCloseGrace(),
	})

	loader := extension.NewLoader(extension.LoaderConfig{
		Bus:    hub,
		Router: router,
		Logger: logger,
		Deps: extension.Deps{
			Client:     client,
			Store:      st,
			Sessions:   sessions,
			Purposes:   purposes,
			Tickets:    tickets,
			Reconciler: reconciler,
			Resolver:   conn.Resolver(),
			Clock:      clk,
			Logger:     logger,
		},
	})
	loader.SetManager(bundles.NewManager(loader))
	for _, b := range defaultBundles() {
		if slices.Contains(cfg.Bundles.Disabled, b.Name()) {
			logger.Info("bundle disabled by configuration", "bundle", b.Name())
			continue
		}
		loader.Add(b)
	}
	if err := loader.Activate(ctx); err != nil {
		return err
	}

	if err := conn.DeclareCommands(ctx, router.Commands()); err != nil {
		return fmt.Errorf("declaring commands: %w", err)
	}

	schedule, err := cron.Parse(cfg.Reconcile.Schedule)
	if err != nil {
		return fmt.Errorf("parsing reconcile schedule: %w", err)
	}
	go reconciler.RunSchedule(ctx, schedule)

	broadcaster := botlog.New(botlog.Config{
		Client:   client,
		Purposes: purposes,
		Logger:   logger,
		Clock:    clk,
		Version:  version.Short(),
		LogPath:  sessionLogPath,
	})
	broadcaster.AnnounceStartup(ctx)

	runErr := make(chan error, 1)
	go func() {
		runErr <- conn.Run(ctx, &traffic{hub: hub, router: router})
	}()

	select {
	case <-ctx.Done():
		logger.Info("termination signal received")
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("gateway loop failed", "error", err)
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	broadcaster.AnnounceShutdown(shutdownCtx)
	loader.UnloadAll()
	sessions.RemoveAll(shutdownCtx)
	logger.Info("guildbotd stopped")
	return nil
}

// loadConfig resolves the config file from the --config flag or the
// GUILDBOT_CONFIG environment variable.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// defaultBundles is every bundle compiled into this build, in
// activation order. The manager is set separately.
func defaultBundles() []extension.Bundle {
	return []extension.Bundle{
		bundles.NewEconomy(),
		bundles.NewLevels(),
		bundles.NewMusic(),
		bundles.NewTickets(),
		bundles.NewPurposes(),
		bundles.NewGuildLog(),
		bundles.NewSettings(),
		bundles.NewFun(),
	}
}

// traffic feeds decoded gateway traffic into the event bus and the
// command router.
type traffic struct {
	hub    *bus.Bus
	router *command.Router
}

func (t *traffic) Event(ctx context.Context, event platform.Event) {
	t.hub.Publish(ctx, event)
}

func (t *traffic) Request(ctx context.Context, req command.Request) {
	t.router.Dispatch(ctx, req)
}
