// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// inductd is the train-induction planning daemon: it ingests fleet
// feeds, runs the nightly and realtime induction cycles, and serves the
// operational HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ManuGH/inductd/internal/api"
	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/cache"
	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/cycle"
	"github.com/ManuGH/inductd/internal/daemon"
	"github.com/ManuGH/inductd/internal/export"
	"github.com/ManuGH/inductd/internal/feedback"
	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/health"
	"github.com/ManuGH/inductd/internal/ingest"
	indlog "github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/planstore"
	"github.com/ManuGH/inductd/internal/ratelimit"
	"github.com/ManuGH/inductd/internal/scenario"
	"github.com/ManuGH/inductd/internal/schedule"
	"github.com/ManuGH/inductd/internal/service"
	"github.com/ManuGH/inductd/internal/solver"
	"github.com/ManuGH/inductd/internal/stabling"
	"github.com/ManuGH/inductd/internal/telemetry"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	indlog.Configure(indlog.Config{
		Level:   "info",
		Service: "inductd",
		Version: version,
	})
	logger := indlog.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Config path: explicit flag wins, INDUCTD_CONFIG is the fallback.
	effectiveConfigPath := strings.TrimSpace(*configPath)
	if effectiveConfigPath == "" {
		effectiveConfigPath = strings.TrimSpace(config.ParseString("INDUCTD_CONFIG", ""))
	}

	loader := config.NewLoader(effectiveConfigPath, version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	indlog.Configure(indlog.Config{
		Level:   cfg.Log.Level,
		Service: "inductd",
		Version: cfg.Version,
		Console: cfg.Log.Format == "console",
	})

	if effectiveConfigPath != "" {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "file").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	} else {
		logger.Info().
			Str("event", "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "startup.check_failed").
			Msg("startup checks failed; verify configuration and permissions")
	}

	if err := run(ctx, cfg, loader, effectiveConfigPath); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
}

// run wires the subsystems and blocks until ctx is cancelled or one of
// them fails. Resources registered as shutdown hooks close LIFO after
// the HTTP listener drains.
func run(ctx context.Context, cfg config.AppConfig, loader *config.Loader, configPath string) error {
	logger := indlog.WithComponent("main")

	tracing, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "inductd",
		ServiceVersion: cfg.Version,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	eventBus := bus.NewMemoryBus()

	fleetStore := fleet.New(eventBus, fleet.Options{
		Depot:          cfg.Depot,
		SensorRing:     cfg.Fleet.SensorRing,
		ConflictWindow: cfg.Ingestion.ConflictWindow,
	})

	plans, err := planstore.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("plan store: %w", err)
	}

	planCache, err := cache.Open(cfg.Cache.Backend, cache.RedisConfig{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	}, logger)
	if err != nil {
		return fmt.Errorf("plan cache: %w", err)
	}

	var fb *feedback.Log
	if cfg.Feedback.Path != "" {
		fb, err = feedback.Open(cfg.Feedback.Path)
		if err != nil {
			return fmt.Errorf("feedback log: %w", err)
		}
	}

	fabric, err := ingest.New(fleetStore, eventBus, cfg.Ingestion, cfg.Sources)
	if err != nil {
		return fmt.Errorf("ingestion fabric: %w", err)
	}

	ensemble := solver.New(solver.Options{
		Mode:           solver.Mode(cfg.Solver.Mode),
		Population:     cfg.Solver.Population,
		Generations:    cfg.Solver.Generations,
		MutationRate:   cfg.Solver.MutationRate,
		CrossoverRate:  cfg.Solver.CrossoverRate,
		TournamentSize: cfg.Solver.TournamentSize,
		ElitismRatio:   cfg.Solver.ElitismRatio,
		InitialTemp:    cfg.SA.InitialTemp,
		Cooling:        cfg.SA.Cooling,
		MinTemp:        cfg.SA.MinTemp,
		WeightGA:       cfg.Solver.WeightGA,
		WeightSA:       cfg.Solver.WeightSA,
		WeightLP:       cfg.Solver.WeightLP,
		Seed:           cfg.Solver.Seed,
	})
	yard := stabling.New(cfg.Stabling.MaxSimultaneousMoves)

	ctrl := cycle.New(cycle.Config{
		Depot:              cfg.Depot,
		MinService:         cfg.Constraints.MinService,
		MaxMaintenance:     cfg.Constraints.MaxMaintenance,
		Interval:           cfg.Cycle.Interval,
		Timeout:            cfg.Cycle.Timeout,
		CacheTTL:           cfg.Cache.TTL,
		BaselineMoves:      cfg.Stabling.BaselineMoves,
		FitnessWarningDays: cfg.Fleet.FitnessWarningDays,
	}, cycle.Deps{
		Fleet:    fleetStore,
		Solver:   ensemble,
		Stabling: yard,
		Plans:    plans,
		Cache:    planCache,
		Export:   export.New(cfg.Export.Path),
		Bus:      eventBus,
		Schedule: schedule.New(cfg.Schedule),
		Alerts:   ratelimit.New(ratelimit.DefaultConfig()),
		Feedback: fb,
	})

	svc := service.New(service.Deps{
		Controller: ctrl,
		Simulator:  scenario.New(ensemble, yard, cfg.Stabling.BaselineMoves),
		Fleet:      fleetStore,
		Bus:        eventBus,
	})

	hm := health.NewManager(cfg.Version)
	hm.RegisterChecker(health.NewStoreChecker(plans, cfg.Depot, 48*time.Hour))
	hm.RegisterChecker(health.NewCacheChecker(planCache))
	hm.RegisterChecker(health.NewFeedbackChecker(fb))
	hm.RegisterChecker(health.NewSourcesChecker(fabric.SourceStates))

	var handler http.Handler = api.New(svc, hm).Router()
	if cfg.Telemetry.Enabled {
		handler = otelhttp.NewHandler(handler, "inductd.ops")
	}
	manager, err := daemon.NewManager(cfg.Ops, handler)
	if err != nil {
		return fmt.Errorf("ops server: %w", err)
	}
	manager.RegisterShutdownHook("telemetry", tracing.Shutdown)
	manager.RegisterShutdownHook("plan-store", func(context.Context) error { return plans.Close() })
	manager.RegisterShutdownHook("plan-cache", func(context.Context) error { return planCache.Close() })
	if fb != nil {
		manager.RegisterShutdownHook("feedback-log", func(context.Context) error { return fb.Close() })
	}

	holder := config.NewConfigHolder(cfg, loader, configPath)

	// The layout seed blocks until the fleet writer starts inside
	// App.Run, so it rides in its own goroutine.
	go func() {
		seedCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		bays, tracks := fleet.DefaultDepotLayout()
		if err := fleetStore.SetLayout(seedCtx, bays, tracks); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("main.layout_seed_failed")
		}
	}()

	logger.Info().
		Str("depot", cfg.Depot).
		Str("listen", cfg.Ops.Listen).
		Str("store", cfg.Store.Backend).
		Str("cache", cfg.Cache.Backend).
		Int("sources", len(cfg.Sources)).
		Msg("main.starting")

	return daemon.NewApp(manager, holder, fleetStore, ctrl, fabric).Run(ctx)
}
