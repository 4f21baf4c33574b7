// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/cycle"
	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/ingest"
	"github.com/ManuGH/inductd/internal/log"
)

// App owns the long-lived runtime: config watching, the fleet writer,
// the cycle monitor, the ingestion fabric, and the server manager.
// Every subsystem stops via the shared context; the first fatal error
// takes the rest down.
type App struct {
	logger       zerolog.Logger
	manager      Manager
	holder       *config.ConfigHolder
	fleet        *fleet.Store
	ctrl         *cycle.Controller
	fabric       *ingest.Fabric
	reloadSignal os.Signal
}

// NewApp wires the runtime. Everything but the manager may be nil; the
// corresponding subsystem simply does not run.
func NewApp(manager Manager, holder *config.ConfigHolder, fleetStore *fleet.Store, ctrl *cycle.Controller, fabric *ingest.Fabric) *App {
	return &App{
		logger:       log.WithComponent("daemon"),
		manager:      manager,
		holder:       holder,
		fleet:        fleetStore,
		ctrl:         ctrl,
		fabric:       fabric,
		reloadSignal: syscall.SIGHUP,
	}
}

// Run starts all subsystems and blocks until ctx is cancelled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	if a.manager == nil {
		return ErrMissingManager
	}
	g, ctx := errgroup.WithContext(ctx)

	if a.holder != nil {
		// Watcher start is best-effort: a missing config file should
		// not keep the daemon from running on its loaded config.
		if err := a.holder.StartWatcher(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("daemon.config_watcher")
		}
		g.Go(func() error {
			a.watchReloadSignal(ctx)
			return nil
		})
	}

	if a.fleet != nil {
		g.Go(func() error { return a.fleet.Run(ctx) })
	}

	if a.ctrl != nil {
		g.Go(func() error { return a.ctrl.Run(ctx) })
	}

	if a.fabric != nil {
		g.Go(func() error { return a.fabric.Run(ctx) })
	}

	g.Go(func() error {
		err := a.manager.Start(ctx)
		if err != nil {
			_ = a.manager.Shutdown(context.Background())
		}
		return err
	})

	return g.Wait()
}

// watchReloadSignal reloads the config on SIGHUP until ctx ends. A
// failed reload keeps the last good config.
func (a *App) watchReloadSignal(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, a.reloadSignal)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigChan:
			a.logger.Info().
				Str("signal", a.reloadSignal.String()).
				Msg("daemon.reload_signal")
			if err := a.holder.Reload(ctx); err != nil {
				a.logger.Warn().Err(err).Msg("daemon.reload_failed")
			}
		}
	}
}
