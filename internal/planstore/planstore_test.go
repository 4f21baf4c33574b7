// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package planstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/inductd/internal/model"
)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	badgerStore, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = badgerStore.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"badger": badgerStore,
	}
}

func testPlan(id, depot string, at time.Time) *model.InductionPlan {
	return &model.InductionPlan{
		ID:          id,
		Depot:       depot,
		GeneratedAt: at,
		Decisions: []model.Decision{
			{
				TrainsetID:  "TS-01",
				Label:       model.LabelInService,
				Score:       1.42,
				AssignedBay: "S1-B1",
				Moves:       []int{0},
				Priority:    8,
				MoveState:   model.MoveDone,
			},
			{
				TrainsetID:  "TS-02",
				Label:       model.LabelMaintenance,
				Score:       0.31,
				Reasons:     []string{"fitness expires 2025-06-08: moved to maintenance"},
				AssignedBay: "WKS-B1",
				Priority:    5,
				MoveState:   model.MovePlaced,
			},
		},
		Moves: []model.ShuntingMove{
			{TrainsetID: "TS-01", FromBay: "S1-B2", ToBay: "S1-B1", Type: model.MoveDirect, Minutes: 2, EnergyKWh: 17.5},
		},
		WaveCount: 1,
		Metrics: model.PlanMetrics{
			TotalScore:          0.85,
			ServiceAvailability: 0.5,
			ShuntingMinutes:     2,
			ShuntingEnergyKWh:   17.5,
		},
		Confidence: 0.91,
		SolverMode: "ensemble",
	}
}

func TestStoreRoundtrip(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			plan := testPlan("MUTT|2025-06-01T23:00:00Z|1", "MUTT", time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC))
			require.NoError(t, s.Put(ctx, plan))

			got, err := s.Get(ctx, plan.ID)
			require.NoError(t, err)
			require.Equal(t, plan, got)
		})
	}
}

func TestStorePutRejectsDuplicateID(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			at := time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
			plan := testPlan("MUTT|2025-06-01T23:00:00Z|1", "MUTT", at)
			require.NoError(t, s.Put(ctx, plan))

			dup := testPlan(plan.ID, "MUTT", at)
			dup.Decisions[0].Label = model.LabelStandby
			require.ErrorIs(t, s.Put(ctx, dup), ErrExists)

			// the first write stays untouched
			got, err := s.Get(ctx, plan.ID)
			require.NoError(t, err)
			require.Equal(t, model.LabelInService, got.Decisions[0].Label)
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(context.Background(), "MUTT|2099-01-01T00:00:00Z|1")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreCurrentTracksLatestPut(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := s.Current(ctx, "MUTT")
			require.ErrorIs(t, err, ErrNotFound)

			first := testPlan("MUTT|2025-06-01T22:00:00Z|1", "MUTT", time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC))
			require.NoError(t, s.Put(ctx, first))
			second := testPlan("MUTT|2025-06-01T23:30:00Z|2", "MUTT", time.Date(2025, 6, 1, 23, 30, 0, 0, time.UTC))
			require.NoError(t, s.Put(ctx, second))

			cur, err := s.Current(ctx, "MUTT")
			require.NoError(t, err)
			require.Equal(t, second.ID, cur.ID)

			_, err = s.Current(ctx, "WEST")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreListFiltersAndSorts(t *testing.T) {
	for name, s := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, p := range []*model.InductionPlan{
				testPlan("MUTT|2025-06-01T21:00:00Z|1", "MUTT", time.Date(2025, 6, 1, 21, 0, 0, 0, time.UTC)),
				testPlan("MUTT|2025-06-01T23:00:00Z|3", "MUTT", time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)),
				testPlan("MUTT|2025-06-01T22:00:00Z|2", "MUTT", time.Date(2025, 6, 1, 22, 0, 0, 0, time.UTC)),
				testPlan("WEST|2025-06-01T23:00:00Z|1", "WEST", time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)),
			} {
				require.NoError(t, s.Put(ctx, p))
			}

			all, err := s.List(ctx, "MUTT", 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			require.Equal(t, "MUTT|2025-06-01T23:00:00Z|3", all[0].ID)
			require.Equal(t, "MUTT|2025-06-01T22:00:00Z|2", all[1].ID)
			require.Equal(t, "MUTT|2025-06-01T21:00:00Z|1", all[2].ID)

			capped, err := s.List(ctx, "MUTT", 2)
			require.NoError(t, err)
			require.Len(t, capped, 2)
			require.Equal(t, "MUTT|2025-06-01T23:00:00Z|3", capped[0].ID)

			west, err := s.List(ctx, "WEST", 10)
			require.NoError(t, err)
			require.Len(t, west, 1)
			require.Equal(t, "WEST|2025-06-01T23:00:00Z|1", west[0].ID)
		})
	}
}

func TestOpenFactory(t *testing.T) {
	s, err := Open("", "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = Open("memory", "")
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	s, err = Open("badger", t.TempDir())
	require.NoError(t, err)
	require.IsType(t, &BadgerStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open("bolt", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown store backend")
}
