// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package solver

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/inductd/internal/model"
)

func TestEnsembleDeterministicWithSeed(t *testing.T) {
	p := testProblem(fleetOf(25, 3), 18, 5)

	res1, err := New(Options{Seed: 42}).Solve(context.Background(), p, "")
	require.NoError(t, err)
	res2, err := New(Options{Seed: 42}).Solve(context.Background(), p, "")
	require.NoError(t, err)

	require.Equal(t, ModeEnsemble, res1.Mode)
	require.Equal(t, int64(42), res1.Seed)
	require.Len(t, res1.Outcomes, 3)
	require.Equal(t, res1.Labels, res2.Labels)
}

func TestEnsembleRespectsHardEligibility(t *testing.T) {
	p := testProblem(fleetOf(25, 3), 18, 5)

	res, err := New(Options{Seed: 7}).Solve(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, res.Labels, 25)

	for i, l := range res.Labels {
		ts := &p.Snapshot.Trainsets[i]
		if l == model.LabelEmergencyRepair {
			require.True(t, ts.HasEmergencyJob(), "%s repaired without emergency card", ts.ID)
		}
		if ts.HasEmergencyJob() {
			require.NotEqual(t, model.LabelInService, l, "%s serves with emergency card", ts.ID)
		}
	}

	// the exact floor is the repairer's contract; the ensemble should
	// still land well above a random labeling
	service, _ := tally(res.Labels)
	require.GreaterOrEqual(t, service, 10)
}

func TestEnsembleEmptyFleet(t *testing.T) {
	p := testProblem(nil, 0, 0)

	res, err := New(Options{Seed: 3}).Solve(context.Background(), p, "")
	require.NoError(t, err)
	require.Empty(t, res.Labels)
}

func TestEnsembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Options{Seed: 1}).Solve(ctx, testProblem(fleetOf(5, 0), 3, 2), "")
	require.ErrorIs(t, err, context.Canceled)
}

func TestEnsembleCoefficientMismatch(t *testing.T) {
	p := testProblem(fleetOf(3, 0), 1, 1)
	p.Coefficients = p.Coefficients[:2]

	_, err := New(Options{}).Solve(context.Background(), p, "")
	require.Error(t, err)
}

func TestVoteWeighted(t *testing.T) {
	weights := []float64{0.40, 0.35, 0.25}

	majority := []Outcome{
		{Labels: []model.DecisionLabel{model.LabelInService}},
		{Labels: []model.DecisionLabel{model.LabelMaintenance}},
		{Labels: []model.DecisionLabel{model.LabelMaintenance}},
	}
	require.Equal(t, []model.DecisionLabel{model.LabelMaintenance}, vote(1, majority, weights))

	split := []Outcome{
		{Labels: []model.DecisionLabel{model.LabelInService}},
		{Labels: []model.DecisionLabel{model.LabelStandby}},
		{Labels: []model.DecisionLabel{model.LabelMaintenance}},
	}
	require.Equal(t, []model.DecisionLabel{model.LabelInService}, vote(1, split, weights))
}

func TestVoteTieFallsToSaferLabel(t *testing.T) {
	outs := []Outcome{
		{Labels: []model.DecisionLabel{model.LabelInService}},
		{Labels: []model.DecisionLabel{model.LabelMaintenance}},
	}
	require.Equal(t, []model.DecisionLabel{model.LabelMaintenance},
		vote(1, outs, []float64{0.5, 0.5}))
}

func TestVoteWithoutBallotsDefaultsToStandby(t *testing.T) {
	require.Equal(t, []model.DecisionLabel{model.LabelStandby},
		vote(1, []Outcome{{}}, []float64{1}))
}

func TestGAFindsServiceBonus(t *testing.T) {
	p := testProblem(fleetOf(8, 0), 3, 3)

	out, err := solveGA(context.Background(), p, Options{}.withDefaults(), rand.New(rand.NewSource(11)))
	require.NoError(t, err)

	service, _ := tally(out.Labels)
	require.GreaterOrEqual(t, service, 3)
	require.Greater(t, out.Score, 100.0)
}

func TestSAAnnealsTowardFloor(t *testing.T) {
	p := testProblem(fleetOf(8, 0), 3, 3)

	out, err := solveSA(context.Background(), p, Options{}.withDefaults(), rand.New(rand.NewSource(5)))
	require.NoError(t, err)

	service, _ := tally(out.Labels)
	require.GreaterOrEqual(t, service, 3)
}
