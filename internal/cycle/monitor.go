// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/model"
)

// Standing alert tags raised by the monitoring loop.
const (
	TagFitnessExpired  = "FITNESS_EXPIRED"
	TagFitnessExpiring = "FITNESS_EXPIRING"
)

// Run drives the periodic monitoring loop: certificate watching and
// demand-window checks, each tick on a fresh snapshot. Returns nil once
// ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	c.logger.Info().
		Str(log.FieldDepot, c.cfg.Depot).
		Dur("interval", c.cfg.Interval).
		Msg("cycle.monitor_started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	snap, err := c.deps.Fleet.Snapshot(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cycle.monitor_snapshot")
		return
	}
	c.watchFitness(ctx, &snap)
	c.watchDemand(ctx)
}

// watchFitness raises certificate alerts and forces a recompute when an
// expired certificate still backs a revenue slot in the current plan.
func (c *Controller) watchFitness(ctx context.Context, snap *model.FleetSnapshot) {
	now := c.now()
	warnBefore := now.Add(time.Duration(c.cfg.FitnessWarningDays) * 24 * time.Hour)

	var plan *model.InductionPlan
	planLoaded := false
	urgent := false
	for i := range snap.Trainsets {
		ts := &snap.Trainsets[i]
		exp := ts.EarliestFitnessExpiry()
		if exp.IsZero() || exp.After(warnBefore) {
			continue
		}
		if exp.After(now) {
			c.alert(ctx, model.TopicAlertWarning, "warning", model.AlertEvent{
				TrainsetID: ts.ID,
				Tag:        TagFitnessExpiring,
				Detail:     fmt.Sprintf("fitness expires %s", exp.Format("2006-01-02")),
			})
			continue
		}
		topic, severity := model.TopicAlertWarning, "warning"
		detail := fmt.Sprintf("fitness expired %s", exp.Format("2006-01-02"))
		if !planLoaded {
			plan, _ = c.Current(ctx, "")
			planLoaded = true
		}
		if plan != nil {
			if d := plan.Decision(ts.ID); d != nil && d.Label == model.LabelInService {
				topic, severity = model.TopicAlertCritical, "critical"
				detail += " with the unit still planned for service"
				urgent = true
			}
		}
		c.alert(ctx, topic, severity, model.AlertEvent{TrainsetID: ts.ID, Tag: TagFitnessExpired, Detail: detail})
	}
	if urgent {
		c.trigger(ctx, "fitness.expired")
	}
}

// watchDemand recomputes the plan when the active demand window wants
// more service than the current plan deploys.
func (c *Controller) watchDemand(ctx context.Context) {
	if c.deps.Schedule == nil {
		return
	}
	plan, err := c.Current(ctx, "")
	if err != nil {
		// no plan yet: nothing to hold against the window
		return
	}
	window, short, ok := c.deps.Schedule.Shortfall(c.now(), plan.CountLabel(model.LabelInService))
	if !ok || short == 0 {
		return
	}
	c.trigger(ctx, "demand."+window.Name)
}

// trigger fires a realtime cycle from the monitoring loop; an already
// running cycle simply wins.
func (c *Controller) trigger(ctx context.Context, reason string) {
	if _, err := c.RunRealtime(ctx, reason); err != nil && !errors.Is(err, ErrCycleInFlight) {
		c.logger.Warn().Err(err).Str("trigger", reason).Msg("cycle.trigger")
	}
}

// alert publishes a trainset alert through the throttle.
func (c *Controller) alert(ctx context.Context, topic, severity string, evt model.AlertEvent) {
	if c.deps.Alerts != nil && !c.deps.Alerts.Allow(evt.TrainsetID, severity) {
		return
	}
	evt.At = c.now().UTC()
	if err := c.deps.Bus.Publish(ctx, topic, evt); err != nil {
		c.logger.Warn().Err(err).
			Str(log.FieldTopic, topic).
			Str(log.FieldTrainsetID, evt.TrainsetID).
			Msg("cycle.alert")
	}
}
