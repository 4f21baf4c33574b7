// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon owns the process lifecycle: the ops HTTP server, the
// long-running subsystems, and an orderly LIFO shutdown of everything
// that holds a resource.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/log"
)

const defaultDrainTimeout = 30 * time.Second

// ShutdownHook performs one cleanup step during graceful shutdown.
// Hooks run in reverse registration order.
type ShutdownHook func(ctx context.Context) error

// Manager runs the ops HTTP server and executes shutdown hooks.
type Manager interface {
	// Start serves until ctx is cancelled or the server fails, then
	// shuts down and returns.
	Start(ctx context.Context) error

	// Shutdown drains the server and runs all registered hooks.
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook adds a cleanup step, executed LIFO.
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type manager struct {
	ops     config.OpsConfig
	handler http.Handler
	server  *http.Server

	shutdownHooks []namedHook
	drainTimeout  time.Duration

	started  bool
	stopping bool
	mu       sync.Mutex

	logger zerolog.Logger
}

type namedHook struct {
	name string
	hook ShutdownHook
}

func NewManager(ops config.OpsConfig, handler http.Handler) (Manager, error) {
	if handler == nil {
		return nil, ErrMissingHandler
	}
	if ops.Listen == "" {
		ops.Listen = ":8080"
	}
	if ops.ReadTimeout <= 0 {
		ops.ReadTimeout = 10 * time.Second
	}
	if ops.WriteTimeout <= 0 {
		ops.WriteTimeout = 30 * time.Second
	}
	return &manager{
		ops:          ops,
		handler:      handler,
		drainTimeout: defaultDrainTimeout,
		logger:       log.WithComponent("daemon"),
	}, nil
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.mu.Unlock()

	m.logger.Info().
		Str("listen", m.ops.Listen).
		Dur("read_timeout", m.ops.ReadTimeout).
		Dur("write_timeout", m.ops.WriteTimeout).
		Msg("daemon.starting")

	m.server = &http.Server{
		Addr:              m.ops.Listen,
		Handler:           m.handler,
		ReadTimeout:       m.ops.ReadTimeout,
		ReadHeaderTimeout: m.ops.ReadTimeout / 2,
		WriteTimeout:      m.ops.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		m.logger.Info().Str("addr", m.ops.Listen).Msg("daemon.listening")
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("ops server: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		m.logger.Error().Err(err).Msg("daemon.server_failed")
		if shutdownErr := m.Shutdown(ctx); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	case <-ctx.Done():
		m.logger.Info().Msg("daemon.shutdown_signal")
		return m.Shutdown(ctx)
	}
}

// Shutdown drains the server and runs the hooks LIFO. The drain runs on
// a bounded context detached from the caller's cancellation, so a dying
// parent context cannot cut cleanup short.
func (m *manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	if !m.started {
		m.mu.Unlock()
		return ErrManagerNotStarted
	}
	m.stopping = true
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.drainTimeout)
	defer cancel()

	var errs []error
	if m.server != nil {
		if err := m.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("ops server shutdown: %w", err))
		}
	}

	for i := len(m.shutdownHooks) - 1; i >= 0; i-- {
		h := m.shutdownHooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).
				Str("hook", h.name).
				Dur("duration", time.Since(start)).
				Msg("daemon.hook_failed")
			errs = append(errs, fmt.Errorf("hook %s: %w", h.name, err))
			continue
		}
		m.logger.Debug().
			Str("hook", h.name).
			Dur("duration", time.Since(start)).
			Msg("daemon.hook_done")
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	m.logger.Info().Msg("daemon.stopped")
	return nil
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}
