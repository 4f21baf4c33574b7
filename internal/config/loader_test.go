// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	loader := NewLoader("", "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "MUTTOM", cfg.Depot)
	require.Equal(t, "ensemble", cfg.Solver.Mode)
	require.Equal(t, 100, cfg.Solver.Population)
	require.Equal(t, 50, cfg.Solver.Generations)
	require.InDelta(t, 0.10, cfg.Solver.MutationRate, 1e-9)
	require.InDelta(t, 0.70, cfg.Solver.CrossoverRate, 1e-9)
	require.InDelta(t, 100.0, cfg.SA.InitialTemp, 1e-9)
	require.InDelta(t, 0.95, cfg.SA.Cooling, 1e-9)
	require.InDelta(t, 0.01, cfg.SA.MinTemp, 1e-9)
	require.Equal(t, 18, cfg.Constraints.MinService)
	require.Equal(t, 5, cfg.Constraints.MaxMaintenance)
	require.Equal(t, 30, cfg.Constraints.MaxShunting)
	require.Equal(t, 300*time.Second, cfg.Cycle.Interval)
	require.Equal(t, 120*time.Second, cfg.Cycle.Timeout)
	require.Equal(t, 10000, cfg.Ingestion.BufferSize)
	require.Equal(t, 5*time.Second, cfg.Ingestion.ConflictWindow)
	require.Equal(t, 2, cfg.Stabling.MaxSimultaneousMoves)
	require.Equal(t, 100, cfg.Stabling.BaselineMoves)
	require.Equal(t, 1000, cfg.Fleet.SensorRing)
	require.Equal(t, "test", cfg.Version)
	require.NotEmpty(t, cfg.Schedule)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
depot: PETTA
solver:
  population: 60
  weights:
    ga: 0.5
    sa: 0.3
    lp: 0.2
constraints:
  minService: 12
cycle:
  interval: 120s
sources:
  - id: maximo-export
    type: maintenance
    format: csv
    priority: 5
    pollInterval: 60s
    backoff: 5s
`)

	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "PETTA", cfg.Depot)
	require.Equal(t, 60, cfg.Solver.Population)
	require.Equal(t, 50, cfg.Solver.Generations) // untouched default
	require.InDelta(t, 0.5, cfg.Solver.WeightGA, 1e-9)
	require.Equal(t, 12, cfg.Constraints.MinService)
	require.Equal(t, 120*time.Second, cfg.Cycle.Interval)
	require.Len(t, cfg.Sources, 1)
	require.Equal(t, "maximo-export", cfg.Sources[0].ID)
	require.Equal(t, 5, cfg.Sources[0].Priority)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := writeConfigFile(t, `
constraints:
  minService: 12
`)
	t.Setenv("INDUCTD_MIN_SERVICE", "20")
	t.Setenv("INDUCTD_SOLVER_MODE", "fast")

	loader := NewLoader(path, "test")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, 20, cfg.Constraints.MinService)
	require.Equal(t, "fast", cfg.Solver.Mode)
	require.Contains(t, loader.ConsumedEnvKeys, "INDUCTD_MIN_SERVICE")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfigFile(t, `
depot: MUTTOM
solvr:
  population: 10
`)
	loader := NewLoader(path, "test")
	_, err := loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "strict config parse error")
}

func TestLoadRejectsMultipleDocuments(t *testing.T) {
	path := writeConfigFile(t, `
depot: MUTTOM
---
depot: PETTA
`)
	loader := NewLoader(path, "test")
	_, err := loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "multiple documents")
}

func TestLoadRejectsNonYAMLExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o600))

	loader := NewLoader(path, "test")
	_, err := loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported config format")
}

func TestLoadInvalidConfigFails(t *testing.T) {
	t.Setenv("INDUCTD_SOLVER_POPULATION", "0")

	loader := NewLoader("", "test")
	_, err := loader.Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "solver.population")
}

func TestScheduleWindowContains(t *testing.T) {
	peak := ScheduleWindow{Name: "morning-peak", StartHour: 6, EndHour: 9}
	require.True(t, peak.Contains(6))
	require.True(t, peak.Contains(8))
	require.False(t, peak.Contains(9))
	require.False(t, peak.Contains(5))

	night := ScheduleWindow{Name: "night", StartHour: 22, EndHour: 5}
	require.True(t, night.Contains(23))
	require.True(t, night.Contains(2))
	require.False(t, night.Contains(12))
}
