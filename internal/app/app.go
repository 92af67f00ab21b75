// Package app wires the engine together and runs it until interrupted.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"lyricsync/internal/config"
	"lyricsync/internal/display"
	"lyricsync/internal/i3block"
	"lyricsync/internal/ipc"
	"lyricsync/internal/player"
	"lyricsync/internal/scheduler"
)

type App struct {
	store      *config.Store
	provider   player.Provider
	standby    *player.Standby
	scheduler  *scheduler.Scheduler
	ipcServer  *ipc.Server
	httpServer *ipc.HTTPServer
	i3         *i3block.Controller
	resources  closers
}

// standbyControl is the manual standby gesture exposed to display clients.
type standbyControl struct {
	standby   *player.Standby
	scheduler *scheduler.Scheduler
}

func (c *standbyControl) Dismiss() string {
	appID := c.scheduler.Snapshot().AppID
	c.standby.Dismiss(appID)
	c.scheduler.Notify()
	return appID
}

func (c *standbyControl) Restore() {
	c.standby.Clear()
	c.scheduler.Notify()
}

func New(ctx context.Context, store *config.Store) *App {
	cfg := store.Load()
	a := &App{store: store, standby: &player.Standby{}}

	provider, pc := NewProvider(cfg.Player.Backend)
	a.provider = provider
	a.resources.add(pc)

	resolver, rc := NewResolver(ctx, cfg)
	a.resources.add(rc)

	control := &standbyControl{standby: a.standby}

	a.ipcServer = ipc.NewServer(cfg.App.SocketPath, cfg.App.StatusFile, control)
	sinks := display.Fanout{a.ipcServer}
	if cfg.App.HTTPAddr != "" {
		a.httpServer = ipc.NewHTTPServer(cfg.App.HTTPAddr, control)
		sinks = append(sinks, a.httpServer)
	}
	if cfg.App.I3blocksSignal > 0 {
		a.i3 = i3block.NewController(cfg.App.I3blocksSignal)
		sinks = append(sinks, a.i3)
	}

	a.scheduler = scheduler.New(provider, resolver, sinks, a.standby)
	control.scheduler = a.scheduler
	return a
}

// Run starts the sinks and the scheduler and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.resources.Close()
	cfg := a.store.Load()

	if err := a.ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer a.ipcServer.Close()

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			a.httpServer.Shutdown(shutdownCtx)
		}()
	}

	if a.i3 != nil {
		if err := a.i3.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to start i3block controller")
		} else {
			defer a.i3.Stop()
		}
	}

	go func() {
		err := a.store.Watch(ctx, func(next *config.Config) {
			if next.App != cfg.App || next.Player != cfg.Player {
				log.Warn().Msg("App and player settings take effect after a restart")
			}
			a.scheduler.Notify()
		})
		if err != nil {
			log.Warn().Err(err).Msg("Config reload disabled")
		}
	}()

	log.Info().
		Str("provider", a.provider.Name()).
		Str("socket", cfg.App.SocketPath).
		Dur("offset", cfg.Lyrics.TimelineOffset).
		Msg("lyricsync started")

	a.scheduler.Run(ctx, cfg.App.TickInterval, a.store.Settings)
	return nil
}
