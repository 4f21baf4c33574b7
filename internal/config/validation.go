// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"go.uber.org/multierr"
)

// Source types recognized by the ingestion fabric.
const (
	SourceMaintenance = "maintenance"
	SourceTelemetry   = "telemetry"
	SourceStream      = "stream"
	SourceOverride    = "override"
	SourceClearance   = "clearance"
)

func validSourceType(t string) bool {
	switch t {
	case SourceMaintenance, SourceTelemetry, SourceStream, SourceOverride, SourceClearance:
		return true
	}
	return false
}

// Validate checks every section of the resolved configuration and returns
// all violations at once so the operator can fix them in a single pass.
func Validate(cfg AppConfig) error {
	var errs error

	if cfg.Depot == "" {
		errs = multierr.Append(errs, fmt.Errorf("depot: must not be empty"))
	}

	switch cfg.Solver.Mode {
	case "ensemble", "fast":
	default:
		errs = multierr.Append(errs, fmt.Errorf("solver.mode: %q not in {ensemble, fast}", cfg.Solver.Mode))
	}
	if cfg.Solver.Population <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("solver.population: must be > 0, got %d", cfg.Solver.Population))
	}
	if cfg.Solver.Generations <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("solver.generations: must be > 0, got %d", cfg.Solver.Generations))
	}
	if cfg.Solver.MutationRate < 0 || cfg.Solver.MutationRate > 1 {
		errs = multierr.Append(errs, fmt.Errorf("solver.mutationRate: must be in [0,1], got %v", cfg.Solver.MutationRate))
	}
	if cfg.Solver.CrossoverRate < 0 || cfg.Solver.CrossoverRate > 1 {
		errs = multierr.Append(errs, fmt.Errorf("solver.crossoverRate: must be in [0,1], got %v", cfg.Solver.CrossoverRate))
	}
	if cfg.Solver.ElitismRatio < 0 || cfg.Solver.ElitismRatio > 1 {
		errs = multierr.Append(errs, fmt.Errorf("solver.elitismRatio: must be in [0,1], got %v", cfg.Solver.ElitismRatio))
	}
	if cfg.Solver.TournamentSize < 1 || cfg.Solver.TournamentSize > cfg.Solver.Population {
		errs = multierr.Append(errs, fmt.Errorf("solver.tournamentSize: must be in [1, population], got %d", cfg.Solver.TournamentSize))
	}
	if cfg.Solver.WeightGA < 0 || cfg.Solver.WeightSA < 0 || cfg.Solver.WeightLP < 0 {
		errs = multierr.Append(errs, fmt.Errorf("solver.weights: must be non-negative"))
	}
	if cfg.Solver.WeightGA+cfg.Solver.WeightSA+cfg.Solver.WeightLP <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("solver.weights: must sum to a positive value"))
	}

	if cfg.SA.InitialTemp <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("sa.initialT: must be > 0, got %v", cfg.SA.InitialTemp))
	}
	if cfg.SA.Cooling <= 0 || cfg.SA.Cooling >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("sa.cooling: must be in (0,1), got %v", cfg.SA.Cooling))
	}
	if cfg.SA.MinTemp <= 0 || cfg.SA.MinTemp >= cfg.SA.InitialTemp {
		errs = multierr.Append(errs, fmt.Errorf("sa.minT: must be in (0, initialT), got %v", cfg.SA.MinTemp))
	}

	if cfg.Constraints.MinService < 0 {
		errs = multierr.Append(errs, fmt.Errorf("constraints.minService: must be >= 0, got %d", cfg.Constraints.MinService))
	}
	if cfg.Constraints.MaxMaintenance < 0 {
		errs = multierr.Append(errs, fmt.Errorf("constraints.maxMaintenance: must be >= 0, got %d", cfg.Constraints.MaxMaintenance))
	}
	if cfg.Constraints.MaxShunting <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("constraints.maxShunting: must be > 0, got %d", cfg.Constraints.MaxShunting))
	}

	if cfg.Cycle.Interval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("cycle.interval: must be > 0"))
	}
	if cfg.Cycle.Timeout <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("cycle.timeout: must be > 0"))
	}

	if cfg.Ingestion.BufferSize <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ingestion.bufferSize: must be > 0, got %d", cfg.Ingestion.BufferSize))
	}
	if cfg.Ingestion.ConflictWindow <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ingestion.conflictWindow: must be > 0"))
	}
	if cfg.Ingestion.MaxFailures <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("ingestion.maxFailures: must be > 0, got %d", cfg.Ingestion.MaxFailures))
	}

	if cfg.Stabling.MaxSimultaneousMoves < 1 {
		errs = multierr.Append(errs, fmt.Errorf("stabling.maxSimultaneousMoves: must be >= 1, got %d", cfg.Stabling.MaxSimultaneousMoves))
	}
	if cfg.Stabling.BaselineMoves < 0 {
		errs = multierr.Append(errs, fmt.Errorf("stabling.baselineMoves: must be >= 0, got %d", cfg.Stabling.BaselineMoves))
	}

	if cfg.Fleet.SensorRing <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("fleet.sensorRing: must be > 0, got %d", cfg.Fleet.SensorRing))
	}

	switch cfg.Store.Backend {
	case "badger":
		if cfg.Store.Path == "" {
			errs = multierr.Append(errs, fmt.Errorf("store.path: required for badger backend"))
		}
	case "memory":
	default:
		errs = multierr.Append(errs, fmt.Errorf("store.backend: %q not in {badger, memory}", cfg.Store.Backend))
	}

	switch cfg.Cache.Backend {
	case "redis":
		if cfg.Cache.RedisAddr == "" {
			errs = multierr.Append(errs, fmt.Errorf("cache.redisAddr: required for redis backend"))
		}
	case "memory", "none":
	default:
		errs = multierr.Append(errs, fmt.Errorf("cache.backend: %q not in {memory, redis, none}", cfg.Cache.Backend))
	}
	if cfg.Cache.TTL < 0 {
		errs = multierr.Append(errs, fmt.Errorf("cache.ttl: must be >= 0"))
	}

	if cfg.Telemetry.Enabled {
		switch cfg.Telemetry.Exporter {
		case "grpc", "http":
		default:
			errs = multierr.Append(errs, fmt.Errorf("telemetry.exporter: %q not in {grpc, http}", cfg.Telemetry.Exporter))
		}
		if cfg.Telemetry.Endpoint == "" {
			errs = multierr.Append(errs, fmt.Errorf("telemetry.endpoint: required when telemetry is enabled"))
		}
	}
	if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
		errs = multierr.Append(errs, fmt.Errorf("telemetry.samplingRate: must be in [0,1], got %v", cfg.Telemetry.SamplingRate))
	}

	if cfg.Ops.Listen == "" {
		errs = multierr.Append(errs, fmt.Errorf("ops.listen: must not be empty"))
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for i, src := range cfg.Sources {
		if src.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("sources[%d].id: must not be empty", i))
			continue
		}
		if _, dup := seen[src.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("sources[%d].id: duplicate id %q", i, src.ID))
		}
		seen[src.ID] = struct{}{}
		if !validSourceType(src.Type) {
			errs = multierr.Append(errs, fmt.Errorf("sources[%d].type: unknown type %q", i, src.Type))
		}
		if src.Priority < 1 || src.Priority > 10 {
			errs = multierr.Append(errs, fmt.Errorf("sources[%d].priority: must be in [1,10], got %d", i, src.Priority))
		}
		if src.PollInterval <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("sources[%d].pollInterval: must be > 0", i))
		}
	}

	for i, w := range cfg.Schedule {
		if w.Name == "" {
			errs = multierr.Append(errs, fmt.Errorf("schedule[%d].name: must not be empty", i))
		}
		if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
			errs = multierr.Append(errs, fmt.Errorf("schedule[%d]: hours must be in [0,23]", i))
		}
		if w.MinService < 0 || (w.MaxService > 0 && w.MinService > w.MaxService) {
			errs = multierr.Append(errs, fmt.Errorf("schedule[%d]: minService must be in [0, maxService]", i))
		}
	}

	return errs
}
