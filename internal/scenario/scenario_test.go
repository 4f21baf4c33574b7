// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scenario

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/repair"
	"github.com/ManuGH/inductd/internal/solver"
	"github.com/ManuGH/inductd/internal/stabling"
)

var simAt = time.Date(2025, 6, 2, 1, 0, 0, 0, time.UTC)

// simFleet is 12 service-ready units plus two uncleared spares. TS-07
// carries a branding contract far behind target, which ranks it first
// for revenue service.
func simFleet() *model.FleetSnapshot {
	trainsets := make([]model.Trainset, 0, 14)
	for i := 1; i <= 12; i++ {
		ts := model.Trainset{
			ID:           fmt.Sprintf("TS-%02d", i),
			Status:       model.StatusAvailable,
			FitnessScore: 8,
			MileageKM:    50000,
			Cleared:      true,
			FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: simAt.Add(60 * 24 * time.Hour),
			},
		}
		if i == 7 {
			ts.Branding = &model.BrandingContract{
				AdvertiserID:  "ADV-07",
				TargetHours:   100,
				ExposureHours: 10,
				Penalty:       25000,
			}
		}
		trainsets = append(trainsets, ts)
	}
	trainsets = append(trainsets,
		model.Trainset{ID: "TS-13", Status: model.StatusMaintenance},
		model.Trainset{ID: "TS-14", Status: model.StatusMaintenance},
	)
	return &model.FleetSnapshot{Depot: "MUTTOM", TakenAt: simAt, Trainsets: trainsets}
}

func fastSimulator() *Simulator {
	return New(solver.New(solver.Options{Mode: solver.ModeFast, Seed: 42}), stabling.New(2), 50)
}

func TestSimulateUnfitPatchShiftsServiceToSpare(t *testing.T) {
	sim := fastSimulator()
	snap := simFleet()
	lim := repair.Limits{MinService: 8, MaxMaintenance: 3}

	base, err := sim.Simulate(context.Background(), snap, nil, lim)
	require.NoError(t, err)
	require.Equal(t, model.LabelInService, base.Decision("TS-07").Label)
	require.Equal(t, 8, base.CountLabel(model.LabelInService))

	patched, err := sim.Simulate(context.Background(), snap, []Patch{{
		TrainsetID:     "TS-07",
		FieldOverrides: map[string]any{"fitnessScore": 1.0},
	}}, lim)
	require.NoError(t, err)
	require.False(t, patched.Infeasible)

	d := patched.Decision("TS-07")
	require.Equal(t, model.LabelMaintenance, d.Label)
	require.Contains(t, d.Reasons[0], "below service minimum")

	// the floor holds: a spare standby took over the slot
	require.Equal(t, 8, patched.CountLabel(model.LabelInService))
	require.Equal(t, model.LabelInService, patched.Decision("TS-09").Label)

	// the live snapshot never saw the patch
	require.InDelta(t, 8.0, snap.Trainset("TS-07").FitnessScore, 1e-9)
}

func TestSimulateEnsembleKeepsUnfitOutOfService(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sim := New(solver.New(solver.Options{Seed: 7}), stabling.New(2), 50)
	snap := simFleet()
	lim := repair.Limits{MinService: 8, MaxMaintenance: 3}

	plan, err := sim.Simulate(context.Background(), snap, []Patch{{
		TrainsetID:     "TS-07",
		FieldOverrides: map[string]any{"fitnessScore": 0.5},
	}}, lim)
	require.NoError(t, err)
	require.False(t, plan.Infeasible)
	require.NotEqual(t, model.LabelInService, plan.Decision("TS-07").Label)
	require.GreaterOrEqual(t, plan.CountLabel(model.LabelInService), 8)
}

func TestSimulateAppliesStatusAndMileage(t *testing.T) {
	sim := fastSimulator()
	snap := simFleet()
	lim := repair.Limits{MinService: 8, MaxMaintenance: 3}

	patched, err := sim.Simulate(context.Background(), snap, []Patch{{
		TrainsetID: "TS-03",
		FieldOverrides: map[string]any{
			"status":    string(model.StatusCleaning),
			"cleared":   false,
			"mileageKm": 180000,
			"energyKwh": 620.5,
		},
	}}, lim)
	require.NoError(t, err)
	require.NotEqual(t, model.LabelInService, patched.Decision("TS-03").Label)

	orig := snap.Trainset("TS-03")
	require.True(t, orig.Cleared)
	require.Equal(t, model.StatusAvailable, orig.Status)
	require.EqualValues(t, 50000, orig.MileageKM)
}

func TestSimulateLeavesSnapshotUntouched(t *testing.T) {
	sim := fastSimulator()
	snap := simFleet()
	want := snap.Clone()

	_, err := sim.Simulate(context.Background(), snap, []Patch{
		{TrainsetID: "TS-01", FieldOverrides: map[string]any{"fitnessScore": 0.5}},
		{TrainsetID: "TS-02", FieldOverrides: map[string]any{"status": string(model.StatusOutOfOrder), "cleared": false}},
	}, repair.Limits{MinService: 6, MaxMaintenance: 3})
	require.NoError(t, err)

	if diff := cmp.Diff(want, *snap); diff != "" {
		t.Fatalf("simulation mutated the live snapshot (-want +got):\n%s", diff)
	}
}

func TestSimulateRejectsInvalidPatches(t *testing.T) {
	sim := fastSimulator()
	snap := simFleet()
	lim := repair.Limits{MinService: 8, MaxMaintenance: 3}

	cases := []struct {
		name  string
		patch Patch
	}{
		{"unknown trainset", Patch{TrainsetID: "TS-99", FieldOverrides: map[string]any{"fitnessScore": 5.0}}},
		{"unknown field", Patch{TrainsetID: "TS-01", FieldOverrides: map[string]any{"livery": "blue"}}},
		{"fitness out of range", Patch{TrainsetID: "TS-01", FieldOverrides: map[string]any{"fitnessScore": 42.0}}},
		{"status outside enum", Patch{TrainsetID: "TS-01", FieldOverrides: map[string]any{"status": "SCRAPPED"}}},
		{"cleared wrong type", Patch{TrainsetID: "TS-01", FieldOverrides: map[string]any{"cleared": "yes"}}},
		{"negative mileage", Patch{TrainsetID: "TS-01", FieldOverrides: map[string]any{"mileageKm": -1}}},
		{"empty overrides", Patch{TrainsetID: "TS-01"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := sim.Simulate(context.Background(), snap, []Patch{tc.patch}, lim)
			require.ErrorIs(t, err, ErrInvalidPatch)
		})
	}
}
