// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and validates the daemon configuration with the
// precedence ENV > file > defaults. The YAML file is parsed strictly;
// unknown keys fail the load so typos never silently fall back.
package config

import "time"

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	Version string `json:"version"`
	Depot   string `json:"depot"`

	Log         LogConfig         `json:"log"`
	Solver      SolverConfig      `json:"solver"`
	SA          SAConfig          `json:"sa"`
	Constraints ConstraintsConfig `json:"constraints"`
	Cycle       CycleConfig       `json:"cycle"`
	Ingestion   IngestionConfig   `json:"ingestion"`
	Stabling    StablingConfig    `json:"stabling"`
	Fleet       FleetConfig       `json:"fleet"`
	Store       StoreConfig       `json:"store"`
	Cache       CacheConfig       `json:"cache"`
	Feedback    FeedbackConfig    `json:"feedback"`
	Export      ExportConfig      `json:"export"`
	Ops         OpsConfig         `json:"ops"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Sources     []SourceConfig    `json:"sources"`
	Schedule    []ScheduleWindow  `json:"schedule"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "json" or "console"
}

// SolverConfig tunes the ensemble solver.
type SolverConfig struct {
	Mode           string  `json:"mode"` // "ensemble" or "fast"
	Population     int     `json:"population"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutationRate"`
	CrossoverRate  float64 `json:"crossoverRate"`
	TournamentSize int     `json:"tournamentSize"`
	ElitismRatio   float64 `json:"elitismRatio"`
	Seed           int64   `json:"seed"` // 0 = derive from clock
	WeightGA       float64 `json:"weightGa"`
	WeightSA       float64 `json:"weightSa"`
	WeightLP       float64 `json:"weightLp"`
}

// SAConfig tunes simulated annealing.
type SAConfig struct {
	InitialTemp float64 `json:"initialTemp"`
	Cooling     float64 `json:"cooling"`
	MinTemp     float64 `json:"minTemp"`
}

// ConstraintsConfig carries the hard induction constraints.
type ConstraintsConfig struct {
	MinService     int `json:"minService"`
	MaxMaintenance int `json:"maxMaintenance"`
	MaxShunting    int `json:"maxShunting"`
}

// CycleConfig controls the real-time cycle controller.
type CycleConfig struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// IngestionConfig bounds the ingestion fabric.
type IngestionConfig struct {
	BufferSize     int           `json:"bufferSize"`
	ConflictWindow time.Duration `json:"conflictWindow"`
	MaxFailures    int           `json:"maxFailures"`
}

// StablingConfig tunes the stabling-geometry optimizer.
type StablingConfig struct {
	MaxSimultaneousMoves int `json:"maxSimultaneousMoves"`
	BaselineMoves        int `json:"baselineMoves"`
}

// FleetConfig carries depot-level fleet parameters.
type FleetConfig struct {
	SensorRing         int   `json:"sensorRing"`
	FitnessWarningDays int   `json:"fitnessWarningDays"`
	TargetDailyKM      int64 `json:"targetDailyKm"`
}

// StoreConfig selects the plan-store backend.
type StoreConfig struct {
	Backend string `json:"backend"` // "badger" or "memory"
	Path    string `json:"path"`
}

// CacheConfig selects the plan-cache backend.
type CacheConfig struct {
	Backend       string        `json:"backend"` // "memory", "redis" or "none"
	TTL           time.Duration `json:"ttl"`
	RedisAddr     string        `json:"redisAddr"`
	RedisPassword string        `json:"redisPassword"`
	RedisDB       int           `json:"redisDb"`
}

// FeedbackConfig locates the append-only feedback log.
type FeedbackConfig struct {
	Path string `json:"path"` // SQLite file; empty disables the log
}

// ExportConfig controls the atomic current-plan file export.
type ExportConfig struct {
	Path string `json:"path"` // empty disables export
}

// OpsConfig configures the operational HTTP endpoint.
type OpsConfig struct {
	Listen       string        `json:"listen"`
	ReadTimeout  time.Duration `json:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `json:"enabled"`
	Exporter     string  `json:"exporter"` // "grpc" or "http"
	Endpoint     string  `json:"endpoint"`
	SamplingRate float64 `json:"samplingRate"`
}

// SourceConfig describes one ingestion source.
type SourceConfig struct {
	ID           string        `json:"id"`
	Type         string        `json:"type"`   // maintenance|telemetry|stream|override|clearance
	Format       string        `json:"format"` // json|csv
	Priority     int           `json:"priority"`
	PollInterval time.Duration `json:"pollInterval"`
	Backoff      time.Duration `json:"backoff"`
	Endpoint     string        `json:"endpoint,omitempty"`
}

// ScheduleWindow is a demand window used by the monitoring loop.
type ScheduleWindow struct {
	Name           string `json:"name"`
	StartHour      int    `json:"startHour"`
	EndHour        int    `json:"endHour"` // exclusive; may wrap past midnight
	MinService     int    `json:"minService"`
	MaxService     int    `json:"maxService"`
	HeadwayMinutes int    `json:"headwayMinutes"`
}

// Contains reports whether the window covers the given hour of day.
func (w ScheduleWindow) Contains(hour int) bool {
	if w.StartHour <= w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	// wraps midnight, e.g. 22..5
	return hour >= w.StartHour || hour < w.EndHour
}

// DefaultScheduleWindows mirror a two-peak metro service day.
func DefaultScheduleWindows() []ScheduleWindow {
	return []ScheduleWindow{
		{Name: "morning-peak", StartHour: 6, EndHour: 9, MinService: 18, MaxService: 25, HeadwayMinutes: 5},
		{Name: "evening-peak", StartHour: 17, EndHour: 20, MinService: 16, MaxService: 25, HeadwayMinutes: 6},
		{Name: "off-peak", StartHour: 9, EndHour: 17, MinService: 10, MaxService: 18, HeadwayMinutes: 10},
		{Name: "night", StartHour: 22, EndHour: 5, MinService: 4, MaxService: 8, HeadwayMinutes: 20},
		{Name: "evening", StartHour: 20, EndHour: 22, MinService: 8, MaxService: 14, HeadwayMinutes: 12},
	}
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		Depot: "MUTTOM",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Solver: SolverConfig{
			Mode:           "ensemble",
			Population:     100,
			Generations:    50,
			MutationRate:   0.10,
			CrossoverRate:  0.70,
			TournamentSize: 5,
			ElitismRatio:   0.10,
			WeightGA:       0.40,
			WeightSA:       0.35,
			WeightLP:       0.25,
		},
		SA: SAConfig{
			InitialTemp: 100,
			Cooling:     0.95,
			MinTemp:     0.01,
		},
		Constraints: ConstraintsConfig{
			MinService:     18,
			MaxMaintenance: 5,
			MaxShunting:    30,
		},
		Cycle: CycleConfig{
			Interval: 300 * time.Second,
			Timeout:  120 * time.Second,
		},
		Ingestion: IngestionConfig{
			BufferSize:     10000,
			ConflictWindow: 5 * time.Second,
			MaxFailures:    5,
		},
		Stabling: StablingConfig{
			MaxSimultaneousMoves: 2,
			BaselineMoves:        100,
		},
		Fleet: FleetConfig{
			SensorRing:         1000,
			FitnessWarningDays: 30,
			TargetDailyKM:      200,
		},
		Store: StoreConfig{
			Backend: "badger",
			Path:    "data/plans",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     time.Hour,
		},
		Ops: OpsConfig{
			Listen:       ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			Exporter:     "grpc",
			SamplingRate: 0.1,
		},
		Schedule: DefaultScheduleWindows(),
	}
}
