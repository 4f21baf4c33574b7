// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package schedule maps an instant to the demand window that governs it,
// so the monitoring loop can compare the current plan against what the
// timetable actually needs right now.
package schedule

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/log"
)

// WeekendWindow is the window name that overrides hourly windows on
// Saturdays and Sundays when configured.
const WeekendWindow = "weekend"

// Evaluator resolves the active demand window for an instant.
type Evaluator struct {
	windows []config.ScheduleWindow
	logger  zerolog.Logger
}

func New(windows []config.ScheduleWindow) *Evaluator {
	return &Evaluator{
		windows: windows,
		logger:  log.WithComponent("schedule"),
	}
}

// Active returns the window covering now. On weekends a window named
// "weekend" wins when present; otherwise the first window whose hour
// range contains the instant is used, in configuration order.
func (e *Evaluator) Active(now time.Time) (config.ScheduleWindow, bool) {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		for _, w := range e.windows {
			if w.Name == WeekendWindow {
				return w, true
			}
		}
	}
	hour := now.Hour()
	for _, w := range e.windows {
		if w.Name == WeekendWindow {
			continue
		}
		if w.Contains(hour) {
			return w, true
		}
	}
	return config.ScheduleWindow{}, false
}

// Shortfall reports how many trainsets the current service level is below
// the active window's minimum. Zero when no window applies or the minimum
// is met.
func (e *Evaluator) Shortfall(now time.Time, serviceCount int) (config.ScheduleWindow, int, bool) {
	win, ok := e.Active(now)
	if !ok {
		return config.ScheduleWindow{}, 0, false
	}
	short := win.MinService - serviceCount
	if short < 0 {
		short = 0
	}
	if short > 0 {
		e.logger.Info().
			Str("window", win.Name).
			Int("min_service", win.MinService).
			Int("in_service", serviceCount).
			Int("shortfall", short).
			Msg("schedule.demand_shortfall")
	}
	return win, short, true
}
