// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scoring

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/model"
)

// repairBaseCost estimates a component overhaul in depot currency.
var repairBaseCost = map[model.ComponentTag]float64{
	model.ComponentEngine:        50000,
	model.ComponentBrakes:        15000,
	model.ComponentDoors:         8000,
	model.ComponentHVAC:          12000,
	model.ComponentBattery:       20000,
	model.ComponentSuspension:    18000,
	model.ComponentElectrical:    10000,
	model.ComponentCommunication: 6000,
}

// levelCostFactor scales the base cost by how far gone the component is.
var levelCostFactor = map[model.ConditionLevel]float64{
	model.ConditionGood:     0.7,
	model.ConditionFair:     1.0,
	model.ConditionPoor:     1.5,
	model.ConditionCritical: 2.5,
}

// RepairCost estimates restoring a component found at the given level.
func RepairCost(c model.ComponentTag, level model.ConditionLevel) float64 {
	base, ok := repairBaseCost[c]
	if !ok {
		base = 10000
	}
	factor, ok := levelCostFactor[level]
	if !ok {
		factor = 1
	}
	return base * factor
}

// urgency combines failure probability, remaining life and the share of
// anomalous frames into a single [0,1] ranking factor.
func urgency(failureProb float64, rulDays int, anomalyFactor float64) float64 {
	timeFactor := 1 - float64(rulDays)/30
	if timeFactor < 0 {
		timeFactor = 0
	}
	u := 0.5*failureProb + 0.3*timeFactor + 0.2*anomalyFactor
	if u > 1 {
		u = 1
	}
	return u
}

func anomalyFactor(agg model.SensorAggregate) float64 {
	if agg.FrameCount == 0 {
		return 0
	}
	return float64(agg.AnomalyFrames) / float64(agg.FrameCount)
}

// Assess derives component conditions from one trainset's sensor
// aggregate. Components without a usable reading are skipped: a zero
// percentage or pressure means "no sample", not a dead part.
func Assess(trainsetID string, agg model.SensorAggregate) []model.ComponentCondition {
	if agg.FrameCount == 0 {
		return nil
	}
	af := anomalyFactor(agg)
	var out []model.ComponentCondition

	add := func(tag model.ComponentTag, level model.ConditionLevel, prob float64, rul int, detail string) {
		out = append(out, model.ComponentCondition{
			TrainsetID:  trainsetID,
			Component:   tag,
			Level:       level,
			FailureProb: prob,
			RULDays:     rul,
			Urgency:     urgency(prob, rul, af),
			RepairCost:  RepairCost(tag, level),
			Detail:      detail,
		})
	}

	switch {
	case agg.MeanMotorTemp > 90:
		add(model.ComponentEngine, model.ConditionPoor, 0.7, 7,
			fmt.Sprintf("mean motor temp %.1f°C", agg.MeanMotorTemp))
	case agg.MeanMotorTemp > 75:
		add(model.ComponentEngine, model.ConditionFair, 0.4, 30,
			fmt.Sprintf("mean motor temp %.1f°C", agg.MeanMotorTemp))
	default:
		add(model.ComponentEngine, model.ConditionGood, 0.1, 90, "")
	}

	switch {
	case agg.BrakeWearPct > 90:
		add(model.ComponentBrakes, model.ConditionCritical, 0.9, 3,
			fmt.Sprintf("brake wear %.1f%%", agg.BrakeWearPct))
	case agg.BrakeWearPct > 70:
		add(model.ComponentBrakes, model.ConditionPoor, 0.6, 14,
			fmt.Sprintf("brake wear %.1f%%", agg.BrakeWearPct))
	default:
		add(model.ComponentBrakes, model.ConditionGood, 0.1, 90, "")
	}

	if agg.BatterySoHPct != 0 {
		switch {
		case agg.BatterySoHPct < 40:
			add(model.ComponentBattery, model.ConditionCritical, 0.85, 5,
				fmt.Sprintf("battery SoH %.1f%%", agg.BatterySoHPct))
		case agg.BatterySoHPct < 60:
			add(model.ComponentBattery, model.ConditionPoor, 0.6, 14,
				fmt.Sprintf("battery SoH %.1f%%", agg.BatterySoHPct))
		default:
			add(model.ComponentBattery, model.ConditionGood, 0.1, 90, "")
		}
	}

	if agg.HVACFilterPct != 0 {
		if agg.HVACFilterPct < 30 {
			add(model.ComponentHVAC, model.ConditionPoor, 0.5, 21,
				fmt.Sprintf("hvac filter %.1f%%", agg.HVACFilterPct))
		} else {
			add(model.ComponentHVAC, model.ConditionGood, 0.1, 90, "")
		}
	}

	if agg.MaxVibration > 2.5 {
		add(model.ComponentSuspension, model.ConditionPoor, 0.55, 18,
			fmt.Sprintf("peak vibration %.2fg", agg.MaxVibration))
	} else {
		add(model.ComponentSuspension, model.ConditionGood, 0.1, 90, "")
	}

	if agg.PantographBar != 0 {
		if agg.PantographBar < 4 || agg.PantographBar > 6 {
			add(model.ComponentElectrical, model.ConditionPoor, 0.5, 14,
				fmt.Sprintf("pantograph %.1f bar", agg.PantographBar))
		} else {
			add(model.ComponentElectrical, model.ConditionGood, 0.1, 90, "")
		}
	}

	return out
}

// Analyzer assesses the whole snapshot and raises alerts for degraded
// components.
type Analyzer struct {
	bus    bus.Bus
	logger zerolog.Logger
}

func NewAnalyzer(b bus.Bus) *Analyzer {
	return &Analyzer{bus: b, logger: log.WithComponent("scoring")}
}

// Conditions assesses every trainset with sensor data, in id order.
// CRITICAL components publish alert.critical, POOR alert.warning.
func (a *Analyzer) Conditions(ctx context.Context, snap *model.FleetSnapshot) []model.ComponentCondition {
	ids := make([]string, 0, len(snap.Sensors))
	for id := range snap.Sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var all []model.ComponentCondition
	for _, id := range ids {
		conds := Assess(id, snap.Sensors[id])
		for _, c := range conds {
			a.alert(ctx, c)
		}
		all = append(all, conds...)
	}
	return all
}

func (a *Analyzer) alert(ctx context.Context, c model.ComponentCondition) {
	if a.bus == nil {
		return
	}
	var topic string
	switch c.Level {
	case model.ConditionCritical:
		topic = model.TopicAlertCritical
	case model.ConditionPoor:
		topic = model.TopicAlertWarning
	default:
		return
	}

	evt := model.AlertEvent{
		TrainsetID: c.TrainsetID,
		Component:  string(c.Component),
		Tag:        fmt.Sprintf("%s_%s", strings.ToUpper(string(c.Component)), c.Level),
		Detail:     fmt.Sprintf("%s (RUL %dd)", c.Detail, c.RULDays),
		At:         time.Now().UTC(),
	}
	if err := a.bus.Publish(ctx, topic, evt); err != nil {
		a.logger.Warn().Err(err).
			Str(log.FieldTrainsetID, c.TrainsetID).
			Str(log.FieldTopic, topic).
			Msg("scoring.alert.publish")
	}
}
