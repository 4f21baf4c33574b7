// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// FileConfig mirrors AppConfig for YAML decoding. Scalar fields are pointers
// so that "absent" and "zero" stay distinguishable during the merge.
type FileConfig struct {
	Depot *string `yaml:"depot"`

	Log *struct {
		Level  *string `yaml:"level"`
		Format *string `yaml:"format"`
	} `yaml:"log"`

	Solver *struct {
		Mode           *string  `yaml:"mode"`
		Population     *int     `yaml:"population"`
		Generations    *int     `yaml:"generations"`
		MutationRate   *float64 `yaml:"mutationRate"`
		CrossoverRate  *float64 `yaml:"crossoverRate"`
		TournamentSize *int     `yaml:"tournamentSize"`
		ElitismRatio   *float64 `yaml:"elitismRatio"`
		Seed           *int64   `yaml:"seed"`
		Weights        *struct {
			GA *float64 `yaml:"ga"`
			SA *float64 `yaml:"sa"`
			LP *float64 `yaml:"lp"`
		} `yaml:"weights"`
	} `yaml:"solver"`

	SA *struct {
		InitialTemp *float64 `yaml:"initialT"`
		Cooling     *float64 `yaml:"cooling"`
		MinTemp     *float64 `yaml:"minT"`
	} `yaml:"sa"`

	Constraints *struct {
		MinService     *int `yaml:"minService"`
		MaxMaintenance *int `yaml:"maxMaintenance"`
		MaxShunting    *int `yaml:"maxShunting"`
	} `yaml:"constraints"`

	Cycle *struct {
		Interval *time.Duration `yaml:"interval"`
		Timeout  *time.Duration `yaml:"timeout"`
	} `yaml:"cycle"`

	Ingestion *struct {
		BufferSize     *int           `yaml:"bufferSize"`
		ConflictWindow *time.Duration `yaml:"conflictWindow"`
		MaxFailures    *int           `yaml:"maxFailures"`
	} `yaml:"ingestion"`

	Stabling *struct {
		MaxSimultaneousMoves *int `yaml:"maxSimultaneousMoves"`
		BaselineMoves        *int `yaml:"baselineMoves"`
	} `yaml:"stabling"`

	Fleet *struct {
		SensorRing         *int   `yaml:"sensorRing"`
		FitnessWarningDays *int   `yaml:"fitnessWarningDays"`
		TargetDailyKM      *int64 `yaml:"targetDailyKm"`
	} `yaml:"fleet"`

	Store *struct {
		Backend *string `yaml:"backend"`
		Path    *string `yaml:"path"`
	} `yaml:"store"`

	Cache *struct {
		Backend       *string        `yaml:"backend"`
		TTL           *time.Duration `yaml:"ttl"`
		RedisAddr     *string        `yaml:"redisAddr"`
		RedisPassword *string        `yaml:"redisPassword"`
		RedisDB       *int           `yaml:"redisDb"`
	} `yaml:"cache"`

	Feedback *struct {
		Path *string `yaml:"path"`
	} `yaml:"feedback"`

	Export *struct {
		Path *string `yaml:"path"`
	} `yaml:"export"`

	Ops *struct {
		Listen       *string        `yaml:"listen"`
		ReadTimeout  *time.Duration `yaml:"readTimeout"`
		WriteTimeout *time.Duration `yaml:"writeTimeout"`
	} `yaml:"ops"`

	Telemetry *struct {
		Enabled      *bool    `yaml:"enabled"`
		Exporter     *string  `yaml:"exporter"`
		Endpoint     *string  `yaml:"endpoint"`
		SamplingRate *float64 `yaml:"samplingRate"`
	} `yaml:"telemetry"`

	Sources []struct {
		ID           string        `yaml:"id"`
		Type         string        `yaml:"type"`
		Format       string        `yaml:"format"`
		Priority     int           `yaml:"priority"`
		PollInterval time.Duration `yaml:"pollInterval"`
		Backoff      time.Duration `yaml:"backoff"`
		Endpoint     string        `yaml:"endpoint"`
	} `yaml:"sources"`

	Schedule []struct {
		Name           string `yaml:"name"`
		StartHour      int    `yaml:"startHour"`
		EndHour        int    `yaml:"endHour"`
		MinService     int    `yaml:"minService"`
		MaxService     int    `yaml:"maxService"`
		HeadwayMinutes int    `yaml:"headwayMinutes"`
	} `yaml:"schedule"`
}

// mergeFileConfig overlays non-nil file values onto cfg.
func (l *Loader) mergeFileConfig(cfg *AppConfig, f *FileConfig) {
	if f == nil {
		return
	}
	setStr := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setI64 := func(dst *int64, src *int64) {
		if src != nil {
			*dst = *src
		}
	}
	setF64 := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setDur := func(dst *time.Duration, src *time.Duration) {
		if src != nil {
			*dst = *src
		}
	}

	setStr(&cfg.Depot, f.Depot)

	if f.Log != nil {
		setStr(&cfg.Log.Level, f.Log.Level)
		setStr(&cfg.Log.Format, f.Log.Format)
	}
	if f.Solver != nil {
		setStr(&cfg.Solver.Mode, f.Solver.Mode)
		setInt(&cfg.Solver.Population, f.Solver.Population)
		setInt(&cfg.Solver.Generations, f.Solver.Generations)
		setF64(&cfg.Solver.MutationRate, f.Solver.MutationRate)
		setF64(&cfg.Solver.CrossoverRate, f.Solver.CrossoverRate)
		setInt(&cfg.Solver.TournamentSize, f.Solver.TournamentSize)
		setF64(&cfg.Solver.ElitismRatio, f.Solver.ElitismRatio)
		setI64(&cfg.Solver.Seed, f.Solver.Seed)
		if f.Solver.Weights != nil {
			setF64(&cfg.Solver.WeightGA, f.Solver.Weights.GA)
			setF64(&cfg.Solver.WeightSA, f.Solver.Weights.SA)
			setF64(&cfg.Solver.WeightLP, f.Solver.Weights.LP)
		}
	}
	if f.SA != nil {
		setF64(&cfg.SA.InitialTemp, f.SA.InitialTemp)
		setF64(&cfg.SA.Cooling, f.SA.Cooling)
		setF64(&cfg.SA.MinTemp, f.SA.MinTemp)
	}
	if f.Constraints != nil {
		setInt(&cfg.Constraints.MinService, f.Constraints.MinService)
		setInt(&cfg.Constraints.MaxMaintenance, f.Constraints.MaxMaintenance)
		setInt(&cfg.Constraints.MaxShunting, f.Constraints.MaxShunting)
	}
	if f.Cycle != nil {
		setDur(&cfg.Cycle.Interval, f.Cycle.Interval)
		setDur(&cfg.Cycle.Timeout, f.Cycle.Timeout)
	}
	if f.Ingestion != nil {
		setInt(&cfg.Ingestion.BufferSize, f.Ingestion.BufferSize)
		setDur(&cfg.Ingestion.ConflictWindow, f.Ingestion.ConflictWindow)
		setInt(&cfg.Ingestion.MaxFailures, f.Ingestion.MaxFailures)
	}
	if f.Stabling != nil {
		setInt(&cfg.Stabling.MaxSimultaneousMoves, f.Stabling.MaxSimultaneousMoves)
		setInt(&cfg.Stabling.BaselineMoves, f.Stabling.BaselineMoves)
	}
	if f.Fleet != nil {
		setInt(&cfg.Fleet.SensorRing, f.Fleet.SensorRing)
		setInt(&cfg.Fleet.FitnessWarningDays, f.Fleet.FitnessWarningDays)
		setI64(&cfg.Fleet.TargetDailyKM, f.Fleet.TargetDailyKM)
	}
	if f.Store != nil {
		setStr(&cfg.Store.Backend, f.Store.Backend)
		setStr(&cfg.Store.Path, f.Store.Path)
	}
	if f.Cache != nil {
		setStr(&cfg.Cache.Backend, f.Cache.Backend)
		setDur(&cfg.Cache.TTL, f.Cache.TTL)
		setStr(&cfg.Cache.RedisAddr, f.Cache.RedisAddr)
		setStr(&cfg.Cache.RedisPassword, f.Cache.RedisPassword)
		setInt(&cfg.Cache.RedisDB, f.Cache.RedisDB)
	}
	if f.Feedback != nil {
		setStr(&cfg.Feedback.Path, f.Feedback.Path)
	}
	if f.Export != nil {
		setStr(&cfg.Export.Path, f.Export.Path)
	}
	if f.Ops != nil {
		setStr(&cfg.Ops.Listen, f.Ops.Listen)
		setDur(&cfg.Ops.ReadTimeout, f.Ops.ReadTimeout)
		setDur(&cfg.Ops.WriteTimeout, f.Ops.WriteTimeout)
	}
	if f.Telemetry != nil {
		if f.Telemetry.Enabled != nil {
			cfg.Telemetry.Enabled = *f.Telemetry.Enabled
		}
		setStr(&cfg.Telemetry.Exporter, f.Telemetry.Exporter)
		setStr(&cfg.Telemetry.Endpoint, f.Telemetry.Endpoint)
		setF64(&cfg.Telemetry.SamplingRate, f.Telemetry.SamplingRate)
	}
	if len(f.Sources) > 0 {
		cfg.Sources = make([]SourceConfig, 0, len(f.Sources))
		for _, s := range f.Sources {
			cfg.Sources = append(cfg.Sources, SourceConfig{
				ID:           s.ID,
				Type:         s.Type,
				Format:       s.Format,
				Priority:     s.Priority,
				PollInterval: s.PollInterval,
				Backoff:      s.Backoff,
				Endpoint:     s.Endpoint,
			})
		}
	}
	if len(f.Schedule) > 0 {
		cfg.Schedule = make([]ScheduleWindow, 0, len(f.Schedule))
		for _, w := range f.Schedule {
			cfg.Schedule = append(cfg.Schedule, ScheduleWindow{
				Name:           w.Name,
				StartHour:      w.StartHour,
				EndHour:        w.EndHour,
				MinService:     w.MinService,
				MaxService:     w.MaxService,
				HeadwayMinutes: w.HeadwayMinutes,
			})
		}
	}
}
