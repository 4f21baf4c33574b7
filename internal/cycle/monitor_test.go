// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/time/rate"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/ratelimit"
	"github.com/ManuGH/inductd/internal/schedule"
)

func drainAlertEvents(sub bus.Subscriber) []model.AlertEvent {
	var out []model.AlertEvent
	for {
		select {
		case msg, ok := <-sub.C():
			if !ok {
				return out
			}
			if evt, isAlert := msg.(model.AlertEvent); isAlert {
				out = append(out, evt)
			}
		default:
			return out
		}
	}
}

func TestWatchFitnessWarnsInsideWindow(t *testing.T) {
	rig := newCycleRig(t)
	snap := model.FleetSnapshot{
		Depot:   "MUTTOM",
		TakenAt: testRunAt,
		Trainsets: []model.Trainset{
			{ID: "TS-01", Cleared: true, FitnessScore: 8, FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: testRunAt.Add(10 * 24 * time.Hour),
			}},
			{ID: "TS-02", Cleared: true, FitnessScore: 8, FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: testRunAt.Add(60 * 24 * time.Hour),
			}},
			{ID: "TS-03", Cleared: true, FitnessScore: 8},
		},
	}
	ctrl := rig.controller(Config{MinService: 1, MaxMaintenance: 1},
		rig.deps(&stubFleet{snap: snap}), testRunAt)

	warnings := subscribeTopic(t, rig.bus, model.TopicAlertWarning)
	criticals := subscribeTopic(t, rig.bus, model.TopicAlertCritical)

	ctrl.watchFitness(context.Background(), &snap)

	evts := drainAlertEvents(warnings)
	require.Len(t, evts, 1, "only the certificate inside the warning window alerts")
	require.Equal(t, "TS-01", evts[0].TrainsetID)
	require.Equal(t, TagFitnessExpiring, evts[0].Tag)
	require.Equal(t, "fitness expires 2025-06-12", evts[0].Detail)
	require.Equal(t, testRunAt, evts[0].At)
	require.Empty(t, drainAlertEvents(criticals))
}

func TestWatchFitnessEscalatesExpiredServiceUnit(t *testing.T) {
	rig := newCycleRig(t)
	snap := model.FleetSnapshot{
		Depot:   "MUTTOM",
		TakenAt: testRunAt,
		Trainsets: []model.Trainset{
			{ID: "TS-01", Cleared: true, FitnessScore: 8, FitnessExpiry: map[model.Department]time.Time{
				model.DeptSignalling: testRunAt.Add(-24 * time.Hour),
			}},
		},
	}
	seeded := &model.InductionPlan{
		ID:          "MUTTOM|2025-06-01T01:00:00Z|7",
		Depot:       "MUTTOM",
		GeneratedAt: testRunAt.Add(-24 * time.Hour),
		Decisions:   []model.Decision{{TrainsetID: "TS-01", Label: model.LabelInService}},
	}
	require.NoError(t, rig.plans.Put(context.Background(), seeded))

	ctrl := rig.controller(Config{MinService: 1, MaxMaintenance: 1},
		rig.deps(&stubFleet{snap: snap}), testRunAt)
	criticals := subscribeTopic(t, rig.bus, model.TopicAlertCritical)

	ctrl.watchFitness(context.Background(), &snap)

	evts := drainAlertEvents(criticals)
	require.Len(t, evts, 1)
	require.Equal(t, "TS-01", evts[0].TrainsetID)
	require.Equal(t, TagFitnessExpired, evts[0].Tag)
	require.Equal(t, "fitness expired 2025-06-01 with the unit still planned for service", evts[0].Detail)

	// the escalation forced a realtime recompute
	current, err := rig.plans.Current(context.Background(), "MUTTOM")
	require.NoError(t, err)
	require.NotEqual(t, seeded.ID, current.ID)
}

func TestWatchFitnessKeepsWarningForIdleExpiredUnit(t *testing.T) {
	rig := newCycleRig(t)
	snap := model.FleetSnapshot{
		Depot:   "MUTTOM",
		TakenAt: testRunAt,
		Trainsets: []model.Trainset{
			{ID: "TS-01", Cleared: true, FitnessScore: 8, FitnessExpiry: map[model.Department]time.Time{
				model.DeptTelecom: testRunAt.Add(-24 * time.Hour),
			}},
		},
	}
	seeded := &model.InductionPlan{
		ID:          "MUTTOM|2025-06-01T01:00:00Z|7",
		Depot:       "MUTTOM",
		GeneratedAt: testRunAt.Add(-24 * time.Hour),
		Decisions:   []model.Decision{{TrainsetID: "TS-01", Label: model.LabelStandby}},
	}
	require.NoError(t, rig.plans.Put(context.Background(), seeded))

	ctrl := rig.controller(Config{MinService: 1, MaxMaintenance: 1},
		rig.deps(&stubFleet{snap: snap}), testRunAt)
	warnings := subscribeTopic(t, rig.bus, model.TopicAlertWarning)
	criticals := subscribeTopic(t, rig.bus, model.TopicAlertCritical)

	ctrl.watchFitness(context.Background(), &snap)

	evts := drainAlertEvents(warnings)
	require.Len(t, evts, 1)
	require.Equal(t, TagFitnessExpired, evts[0].Tag)
	require.Equal(t, "fitness expired 2025-06-01", evts[0].Detail)
	require.Empty(t, drainAlertEvents(criticals))

	// a parked unit does not force a recompute
	current, err := rig.plans.Current(context.Background(), "MUTTOM")
	require.NoError(t, err)
	require.Equal(t, seeded.ID, current.ID)
}

func TestWatchDemandRecomputesOnShortfall(t *testing.T) {
	rig := newCycleRig(t)
	snap := model.FleetSnapshot{
		Depot:   "MUTTOM",
		TakenAt: testRunAt,
		Trainsets: []model.Trainset{
			clearedUnit("TS-01", 50000),
			clearedUnit("TS-02", 51000),
		},
	}
	d := rig.deps(&stubFleet{snap: snap})
	d.Schedule = schedule.New([]config.ScheduleWindow{
		{Name: "peak", StartHour: 9, EndHour: 17, MinService: 2, MaxService: 4},
	})
	midMorning := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	ctrl := rig.controller(Config{MinService: 1, MaxMaintenance: 1}, d, midMorning)

	seeded := &model.InductionPlan{
		ID:          "MUTTOM|2025-06-02T01:00:00Z|9",
		Depot:       "MUTTOM",
		GeneratedAt: testRunAt,
		Decisions:   []model.Decision{{TrainsetID: "TS-01", Label: model.LabelInService}},
	}
	require.NoError(t, rig.plans.Put(context.Background(), seeded))

	ctrl.watchDemand(context.Background())

	current, err := rig.plans.Current(context.Background(), "MUTTOM")
	require.NoError(t, err)
	require.NotEqual(t, seeded.ID, current.ID)
	require.Equal(t, 2, current.CountLabel(model.LabelInService),
		"the recompute fills the window minimum")

	// the window is satisfied now: another sweep changes nothing
	ctrl.watchDemand(context.Background())
	after, err := rig.plans.Current(context.Background(), "MUTTOM")
	require.NoError(t, err)
	require.Equal(t, current.ID, after.ID)
}

func TestAlertThrottleLimitsRepeats(t *testing.T) {
	rig := newCycleRig(t)
	d := rig.deps(&stubFleet{})
	d.Alerts = ratelimit.New(ratelimit.Config{
		GlobalRate:       100,
		GlobalBurst:      100,
		PerTrainsetRate:  rate.Every(time.Hour),
		PerTrainsetBurst: 1,
	})
	ctrl := rig.controller(Config{MinService: 1, MaxMaintenance: 1}, d, testRunAt)
	warnings := subscribeTopic(t, rig.bus, model.TopicAlertWarning)

	evt := model.AlertEvent{TrainsetID: "TS-01", Tag: TagFitnessExpiring}
	ctrl.alert(context.Background(), model.TopicAlertWarning, "warning", evt)
	ctrl.alert(context.Background(), model.TopicAlertWarning, "warning", evt)
	require.Len(t, drainAlertEvents(warnings), 1, "repeat alert for the same unit is throttled")

	other := model.AlertEvent{TrainsetID: "TS-02", Tag: TagFitnessExpiring}
	ctrl.alert(context.Background(), model.TopicAlertWarning, "warning", other)
	require.Len(t, drainAlertEvents(warnings), 1, "another unit keeps its own budget")
}

func TestMonitorRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rig := newCycleRig(t)
	ctrl := rig.controller(Config{MinService: 1, MaxMaintenance: 1, Interval: 5 * time.Millisecond},
		rig.deps(&stubFleet{err: errors.New("depot offline")}), testRunAt)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	// let a few ticks run against the failing snapshot source
	time.Sleep(25 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
