// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/inductd/internal/model"
)

func clearedTrainset(id string, mileage int64) model.Trainset {
	return model.Trainset{
		ID:           id,
		Status:       model.StatusAvailable,
		FitnessScore: 8,
		MileageKM:    mileage,
		Cleared:      true,
		EnergyKWh:    400,
	}
}

func TestCoefficientNotCleared(t *testing.T) {
	ts := clearedTrainset("TS-01", 50000)
	ts.Cleared = false
	ts.FitnessScore = 10

	require.Equal(t, -10.0, Coefficient(&ts, 50000))
}

func TestCoefficientFullyFit(t *testing.T) {
	ts := clearedTrainset("TS-01", 50000)

	// 0.25*8 fitness + 0.20 mileage-at-mean + 0.10*(1-0.4) energy
	require.InDelta(t, 2.26, Coefficient(&ts, 50000), 1e-9)
}

func TestCoefficientJobPenalty(t *testing.T) {
	ts := clearedTrainset("TS-01", 50000)
	ts.OpenJobs = []model.JobCard{
		{ID: "J-1", Priority: model.PriorityEmergency},
		{ID: "J-2", Priority: model.PriorityLow},
	}

	// emergency 4 + low 1 weigh 5, at -0.30 each unit
	require.InDelta(t, 2.26-1.5, Coefficient(&ts, 50000), 1e-9)
}

func TestCoefficientMileageDeviationClipped(t *testing.T) {
	onMean := clearedTrainset("TS-01", 50000)
	outlier := clearedTrainset("TS-02", 200000)

	// deviation 3x the mean clips to 1, zeroing the mileage term
	diff := Coefficient(&onMean, 50000) - Coefficient(&outlier, 50000)
	require.InDelta(t, 0.2, diff, 1e-9)
}

func TestCoefficientZeroMeanMileage(t *testing.T) {
	ts := clearedTrainset("TS-01", 0)

	c := Coefficient(&ts, 0)
	require.False(t, math.IsNaN(c))
	require.InDelta(t, 2.06, c, 1e-9) // mileage term dropped entirely
}

func TestCoefficientBrandingShortfall(t *testing.T) {
	base := clearedTrainset("TS-01", 50000)
	behind := clearedTrainset("TS-01", 50000)
	behind.Branding = &model.BrandingContract{
		AdvertiserID:  "metro-cola",
		TargetHours:   100,
		ExposureHours: 25,
	}
	ahead := clearedTrainset("TS-01", 50000)
	ahead.Branding = &model.BrandingContract{
		AdvertiserID:  "metro-cola",
		TargetHours:   100,
		ExposureHours: 150,
	}

	require.InDelta(t, 0.15*0.75, Coefficient(&behind, 50000)-Coefficient(&base, 50000), 1e-9)
	// overshooting the target earns no extra credit
	require.InDelta(t, Coefficient(&base, 50000), Coefficient(&ahead, 50000), 1e-9)
}

func TestVectorFollowsSnapshotOrder(t *testing.T) {
	snap := &model.FleetSnapshot{
		Trainsets: []model.Trainset{
			clearedTrainset("TS-01", 40000),
			clearedTrainset("TS-02", 60000),
			clearedTrainset("TS-03", 50000),
		},
	}
	require.InDelta(t, 50000, snap.MeanMileage(), 1e-9)

	vec := Vector(snap)
	require.Len(t, vec, 3)
	for i := range snap.Trainsets {
		require.InDelta(t, Coefficient(&snap.Trainsets[i], 50000), vec[i], 1e-9)
	}
	// TS-03 sits on the mean, TS-01 and TS-02 deviate equally
	require.Greater(t, vec[2], vec[0])
	require.InDelta(t, vec[0], vec[1], 1e-9)
}

func TestVectorEmptySnapshot(t *testing.T) {
	vec := Vector(&model.FleetSnapshot{})
	require.Empty(t, vec)
}
