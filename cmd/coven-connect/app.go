// ABOUTME: Wires config, store, session manager, and platform adapters into
// ABOUTME: a running connector with coordinated shutdown.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-connect/internal/config"
	"github.com/2389/coven-connect/internal/dedupe"
	"github.com/2389/coven-connect/internal/dispatch"
	"github.com/2389/coven-connect/internal/engine"
	"github.com/2389/coven-connect/internal/platform"
	"github.com/2389/coven-connect/internal/platform/matrix"
	"github.com/2389/coven-connect/internal/platform/slack"
	"github.com/2389/coven-connect/internal/platform/teams"
	"github.com/2389/coven-connect/internal/progress"
	"github.com/2389/coven-connect/internal/session"
	"github.com/2389/coven-connect/internal/store"
	"github.com/2389/coven-connect/internal/workdir"
)

const shutdownTimeout = 10 * time.Second

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.SQLiteStore
	manager  *session.Manager
	bot      *dispatch.Bot
	adapters []platform.Adapter
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	workdirs, err := workdir.New(cfg.Workspace.Roots, st, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("workspace roots: %w", err)
	}

	mode, err := progress.ParseMode(cfg.Display.Mode)
	if err != nil {
		st.Close()
		return nil, err
	}

	manager := session.NewManager(engine.Loader(cfg.Engine.BundlePath, logger), logger)
	cache := dedupe.New(cfg.Dedupe.TTL, cfg.Dedupe.MaxSize)
	bot := dispatch.New(manager, workdirs, st, cache, mode, cfg.Display.MaxMessageLength, logger)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		manager: manager,
		bot:     bot,
	}

	if cfg.Platforms.Slack.Enabled {
		a.adapters = append(a.adapters, slack.New(slack.Config{
			AppToken:        cfg.Platforms.Slack.AppToken,
			BotToken:        cfg.Platforms.Slack.BotToken,
			AllowedChannels: cfg.Platforms.Slack.AllowedChannels,
		}, logger))
	}
	if cfg.Platforms.Teams.Enabled {
		a.adapters = append(a.adapters, teams.New(teams.Config{
			ListenAddr: cfg.Platforms.Teams.ListenAddr,
			AppID:      cfg.Platforms.Teams.AppID,
			AppSecret:  cfg.Platforms.Teams.AppSecret,
			TenantID:   cfg.Platforms.Teams.TenantID,
		}, teams.BotFrameworkKeyFunc(), logger))
	}
	if cfg.Platforms.Matrix.Enabled {
		mx, err := matrix.New(matrix.Config{
			Homeserver:   cfg.Platforms.Matrix.Homeserver,
			UserID:       cfg.Platforms.Matrix.UserID,
			AccessToken:  cfg.Platforms.Matrix.AccessToken,
			AllowedUsers: cfg.Platforms.Matrix.AllowedUsers,
			AllowedRooms: cfg.Platforms.Matrix.AllowedRooms,
		}, logger)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("matrix adapter: %w", err)
		}
		a.adapters = append(a.adapters, mx)
	}

	return a, nil
}

// Run starts every adapter and blocks until ctx is cancelled or an
// adapter fails. All sessions close and the store flushes on the way out.
func (a *app) Run(ctx context.Context) error {
	defer a.close()

	if err := a.manager.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing session template: %w", err)
	}

	for _, adapter := range a.adapters {
		if err := adapter.Startup(ctx); err != nil {
			return fmt.Errorf("starting %s adapter: %w", adapter.Name(), err)
		}
		a.logger.Info("adapter started", "platform", adapter.Name())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range a.adapters {
		g.Go(func() error {
			err := adapter.Listen(gctx, a.bot.HandlerFor(adapter))
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s adapter: %w", adapter.Name(), err)
			}
			return nil
		})
	}

	err := g.Wait()
	a.logger.Info("shutting down")
	return err
}

func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, adapter := range a.adapters {
		if err := adapter.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("adapter shutdown failed", "platform", adapter.Name(), "error", err)
		}
	}

	a.manager.CloseAll()

	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store failed", "error", err)
	}
}
