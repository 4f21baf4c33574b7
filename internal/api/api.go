// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the operational HTTP surface: probes, metrics and
// the thin v1 endpoints over the planning service. It is deliberately
// not a CRUD layer; plans are produced by cycles, not edited here.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/health"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/service"
)

// Server wires the planning service and the health manager into a chi
// router. It holds no listener; the daemon owns the http.Server.
type Server struct {
	svc    *service.Service
	health *health.Manager
	logger zerolog.Logger
}

func New(svc *service.Service, hm *health.Manager) *Server {
	return &Server{
		svc:    svc,
		health: hm,
		logger: log.WithComponent("api"),
	}
}

// Router builds the route tree with the canonical middleware order:
// recoverer first, request ID before anything that logs, metrics and
// logging around the handlers, rate limits per route group.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestMetrics)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(readRateLimit())
			r.Get("/plans/current", s.handleCurrentPlan)
		})
		r.Group(func(r chi.Router) {
			r.Use(triggerRateLimit())
			r.Post("/cycles", s.handleTriggerCycle)
			r.Post("/decisions", s.handleSubmitDecision)
		})
	})
	return r
}
