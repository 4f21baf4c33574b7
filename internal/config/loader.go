// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	// 1. Load from file (if provided)
	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		l.mergeFileConfig(&cfg, fileCfg)
	}

	// 2. Override with environment variables (highest priority)
	l.mergeEnvConfig(&cfg)

	// SAFETY: store and feedback paths must be absolute-safe
	if cfg.Store.Path != "" {
		if abs, err := filepath.Abs(cfg.Store.Path); err == nil {
			cfg.Store.Path = abs
		}
	}

	// 3. Version from binary
	cfg.Version = l.version

	// 4. Validate final configuration
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	// Parse YAML with strict mode (unknown fields cause errors)
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(&fileCfg); err != nil {
		if err == io.EOF {
			return &FileConfig{}, nil
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("config file contains multiple documents or trailing content")
	}

	return &fileCfg, nil
}

// mergeEnvConfig applies INDUCTD_* environment overrides onto cfg.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.Depot = l.envString("INDUCTD_DEPOT", cfg.Depot)

	cfg.Log.Level = l.envString("INDUCTD_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = l.envString("INDUCTD_LOG_FORMAT", cfg.Log.Format)

	cfg.Solver.Mode = l.envString("INDUCTD_SOLVER_MODE", cfg.Solver.Mode)
	cfg.Solver.Population = l.envInt("INDUCTD_SOLVER_POPULATION", cfg.Solver.Population)
	cfg.Solver.Generations = l.envInt("INDUCTD_SOLVER_GENERATIONS", cfg.Solver.Generations)
	cfg.Solver.MutationRate = l.envFloat("INDUCTD_SOLVER_MUTATION_RATE", cfg.Solver.MutationRate)
	cfg.Solver.CrossoverRate = l.envFloat("INDUCTD_SOLVER_CROSSOVER_RATE", cfg.Solver.CrossoverRate)
	cfg.Solver.TournamentSize = l.envInt("INDUCTD_SOLVER_TOURNAMENT_SIZE", cfg.Solver.TournamentSize)
	cfg.Solver.ElitismRatio = l.envFloat("INDUCTD_SOLVER_ELITISM_RATIO", cfg.Solver.ElitismRatio)
	cfg.Solver.Seed = l.envInt64("INDUCTD_SOLVER_SEED", cfg.Solver.Seed)

	cfg.SA.InitialTemp = l.envFloat("INDUCTD_SA_INITIAL_TEMP", cfg.SA.InitialTemp)
	cfg.SA.Cooling = l.envFloat("INDUCTD_SA_COOLING", cfg.SA.Cooling)
	cfg.SA.MinTemp = l.envFloat("INDUCTD_SA_MIN_TEMP", cfg.SA.MinTemp)

	cfg.Constraints.MinService = l.envInt("INDUCTD_MIN_SERVICE", cfg.Constraints.MinService)
	cfg.Constraints.MaxMaintenance = l.envInt("INDUCTD_MAX_MAINTENANCE", cfg.Constraints.MaxMaintenance)
	cfg.Constraints.MaxShunting = l.envInt("INDUCTD_MAX_SHUNTING", cfg.Constraints.MaxShunting)

	cfg.Cycle.Interval = l.envDuration("INDUCTD_CYCLE_INTERVAL", cfg.Cycle.Interval)
	cfg.Cycle.Timeout = l.envDuration("INDUCTD_CYCLE_TIMEOUT", cfg.Cycle.Timeout)

	cfg.Ingestion.BufferSize = l.envInt("INDUCTD_INGEST_BUFFER", cfg.Ingestion.BufferSize)
	cfg.Ingestion.ConflictWindow = l.envDuration("INDUCTD_CONFLICT_WINDOW", cfg.Ingestion.ConflictWindow)
	cfg.Ingestion.MaxFailures = l.envInt("INDUCTD_INGEST_MAX_FAILURES", cfg.Ingestion.MaxFailures)

	cfg.Stabling.MaxSimultaneousMoves = l.envInt("INDUCTD_MAX_SIMULTANEOUS_MOVES", cfg.Stabling.MaxSimultaneousMoves)
	cfg.Stabling.BaselineMoves = l.envInt("INDUCTD_BASELINE_MOVES", cfg.Stabling.BaselineMoves)

	cfg.Fleet.SensorRing = l.envInt("INDUCTD_SENSOR_RING", cfg.Fleet.SensorRing)
	cfg.Fleet.FitnessWarningDays = l.envInt("INDUCTD_FITNESS_WARNING_DAYS", cfg.Fleet.FitnessWarningDays)
	cfg.Fleet.TargetDailyKM = l.envInt64("INDUCTD_TARGET_DAILY_KM", cfg.Fleet.TargetDailyKM)

	cfg.Store.Backend = l.envString("INDUCTD_STORE_BACKEND", cfg.Store.Backend)
	cfg.Store.Path = l.envString("INDUCTD_STORE_PATH", cfg.Store.Path)

	cfg.Cache.Backend = l.envString("INDUCTD_CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.TTL = l.envDuration("INDUCTD_CACHE_TTL", cfg.Cache.TTL)
	cfg.Cache.RedisAddr = l.envString("INDUCTD_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.RedisPassword = l.envString("INDUCTD_REDIS_PASSWORD", cfg.Cache.RedisPassword)
	cfg.Cache.RedisDB = l.envInt("INDUCTD_REDIS_DB", cfg.Cache.RedisDB)

	cfg.Feedback.Path = l.envString("INDUCTD_FEEDBACK_PATH", cfg.Feedback.Path)
	cfg.Export.Path = l.envString("INDUCTD_EXPORT_PATH", cfg.Export.Path)

	cfg.Ops.Listen = l.envString("INDUCTD_OPS_LISTEN", cfg.Ops.Listen)

	cfg.Telemetry.Enabled = l.envBool("INDUCTD_OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("INDUCTD_OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("INDUCTD_OTEL_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("INDUCTD_OTEL_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}
