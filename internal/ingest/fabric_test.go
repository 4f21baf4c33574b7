// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

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
	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/ratelimit"
)

// startStore runs a fleet store with a sub-microsecond conflict window
// so fabric tests exercise plain apply semantics, not conflict handling.
func startStore(t *testing.T, b bus.Bus) *fleet.Store {
	t.Helper()
	st := fleet.New(b, fleet.Options{Depot: "MUTTOM", ConflictWindow: time.Nanosecond})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		_ = st.Run(ctx)
		close(stopped)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})
	return st
}

func pushSources() []config.SourceConfig {
	return []config.SourceConfig{
		{ID: "maximo", Type: config.SourceMaintenance, Format: "json", Priority: 8},
		{ID: "iot-gw", Type: config.SourceTelemetry, Format: "json", Priority: 3},
		{ID: "depot-override", Type: config.SourceOverride, Format: "json", Priority: 9},
		{ID: "cert-office", Type: config.SourceClearance, Format: "json", Priority: 7},
	}
}

func TestFabricSubmitAppliesMaintenance(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64, MaxFailures: 5}, pushSources())
	require.NoError(t, err)

	raw := []byte(`[{"trainsetId": "TS-01", "status": "AVAILABLE", "mileageKm": 52000, "operatingHours": 4100, "defectCount": 0}]`)
	results, err := fa.Submit(context.Background(), Record{SourceID: "maximo", Format: "json", Bytes: raw})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, fleet.ApplyApplied, results[0].Status)

	snap, err := st.Snapshot(context.Background())
	require.NoError(t, err)
	ts := snap.Trainset("TS-01")
	require.NotNil(t, ts)
	require.EqualValues(t, 52000, ts.MileageKM)
	require.InDelta(t, 100, ts.MaintenanceScore, 1e-9)
}

func TestFabricSubmitUnknownSource(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64}, pushSources())
	require.NoError(t, err)

	_, err = fa.Submit(context.Background(), Record{SourceID: "ghost", Bytes: []byte(`[]`)})
	require.ErrorIs(t, err, ErrUnknownSource)
}

func TestFabricRejectsInvalidPayload(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64}, pushSources())
	require.NoError(t, err)

	_, err = fa.Submit(context.Background(), Record{SourceID: "maximo", Format: "json", Bytes: []byte(`{not json`)})
	require.Error(t, err)

	snap, err := st.Snapshot(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap.Trainsets)
}

func TestOverrideReassertsOverAutomaticWrite(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64}, pushSources())
	require.NoError(t, err)
	ctx := context.Background()

	// Supervisor forces TS-01 into service until tomorrow.
	override := []byte(`{
		"trainsetId": "TS-01",
		"authorizedBy": "supervisor.nair",
		"reason": "VIP charter",
		"expiresAt": "2099-01-01T00:00:00Z",
		"set": {"status": "IN_SERVICE", "cleared": true}
	}`)
	results, err := fa.Submit(ctx, Record{SourceID: "depot-override", Format: "json", Bytes: override})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, fleet.ApplyApplied, results[0].Status)

	// A later maintenance poll tries to pull it back out of service.
	maint := []byte(`[{"trainsetId": "TS-01", "status": "MAINTENANCE"}]`)
	results, err = fa.Submit(ctx, Record{SourceID: "maximo", Format: "json", Bytes: maint})
	require.NoError(t, err)
	require.Equal(t, fleet.ApplyApplied, results[0].Status)

	// The override wins: re-asserted right after the automatic write.
	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	ts := snap.Trainset("TS-01")
	require.NotNil(t, ts)
	require.Equal(t, model.StatusInService, ts.Status)
	require.True(t, ts.Cleared)
}

func TestExpiredOverrideIsRejected(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64}, pushSources())
	require.NoError(t, err)

	expired := []byte(`{
		"trainsetId": "TS-01",
		"authorizedBy": "supervisor.nair",
		"expiresAt": "2001-01-01T00:00:00Z",
		"set": {"cleared": true}
	}`)
	results, err := fa.Submit(context.Background(), Record{SourceID: "depot-override", Format: "json", Bytes: expired})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, fleet.ApplyRejected, results[0].Status)
	require.Contains(t, results[0].Errors[0], "expired")
}

func TestTelemetryAlertsAreThrottled(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	throttle := ratelimit.DefaultConfig()
	throttle.PerTrainsetRate = rate.Every(30 * time.Second)
	throttle.PerTrainsetBurst = 3

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64}, pushSources(), WithThrottle(throttle))
	require.NoError(t, err)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, model.TopicAlertCritical)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	// Five overheating frames for the same trainset in one batch.
	raw := []byte(`[
		{"trainsetId": "TS-01", "timestamp": 1750000001, "motorTempC": 45},
		{"trainsetId": "TS-01", "timestamp": 1750000002, "motorTempC": 46},
		{"trainsetId": "TS-01", "timestamp": 1750000003, "motorTempC": 47},
		{"trainsetId": "TS-01", "timestamp": 1750000004, "motorTempC": 48},
		{"trainsetId": "TS-01", "timestamp": 1750000005, "motorTempC": 49}
	]`)
	_, err = fa.Submit(ctx, Record{SourceID: "iot-gw", Format: "json", Bytes: raw})
	require.NoError(t, err)

	// Publishes happen synchronously during Submit; drain what arrived.
	var alerts []model.AlertEvent
	for done := false; !done; {
		select {
		case msg := <-sub.C():
			evt, ok := msg.(model.AlertEvent)
			require.True(t, ok)
			alerts = append(alerts, evt)
		default:
			done = true
		}
	}

	require.Len(t, alerts, 3, "per-trainset burst of 3 should cap the batch")
	require.Equal(t, model.AnomalyHighTemperature, alerts[0].Tag)
	require.Equal(t, "engine", alerts[0].Component)

	// The frames themselves all landed in the ring.
	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	agg, ok := snap.Sensors["TS-01"]
	require.True(t, ok)
	require.Equal(t, 5, agg.FrameCount)
	require.Equal(t, 5, agg.AnomalyFrames)
}

func TestClearanceFeedAggregates(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 64}, pushSources())
	require.NoError(t, err)
	ctx := context.Background()

	now := time.Now().UTC()
	from := now.Add(-time.Hour).Format(time.RFC3339)
	to := now.Add(24 * time.Hour).Format(time.RFC3339)

	payload := []byte(`[
		{"department": "ROLLING_STOCK", "trainsetId": "TS-07", "status": "CLEARED", "validFrom": "` + from + `", "validTo": "` + to + `"},
		{"department": "SIGNALLING", "trainsetId": "TS-07", "status": "CLEARED", "validFrom": "` + from + `", "validTo": "` + to + `"}
	]`)
	results, err := fa.Submit(ctx, Record{SourceID: "cert-office", Format: "json", Bytes: payload})
	require.NoError(t, err)
	require.Len(t, results, 2)

	snap, err := st.Snapshot(ctx)
	require.NoError(t, err)
	require.False(t, snap.Trainset("TS-07").Cleared, "telecom clearance still missing")

	telecom := []byte(`[
		{"department": "TELECOM", "trainsetId": "TS-07", "status": "CLEARED", "validFrom": "` + from + `", "validTo": "` + to + `"}
	]`)
	_, err = fa.Submit(ctx, Record{SourceID: "cert-office", Format: "json", Bytes: telecom})
	require.NoError(t, err)

	snap, err = st.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, snap.Trainset("TS-07").Cleared)
}

func TestPollerTripsBreakerAndOperatorReenables(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	boom := errors.New("export host down")
	failing := FetcherFunc(func(ctx context.Context) ([]byte, error) {
		return nil, boom
	})

	sources := []config.SourceConfig{{
		ID:           "maximo",
		Type:         config.SourceMaintenance,
		Format:       "json",
		Priority:     8,
		PollInterval: 10 * time.Millisecond,
		Backoff:      time.Millisecond,
		Endpoint:     "http://maximo.depot.internal/export",
	}}

	fa, err := New(st, b, config.IngestionConfig{BufferSize: 16, MaxFailures: 2}, sources,
		WithFetcher("maximo", failing))
	require.NoError(t, err)

	sub, err := b.Subscribe(context.Background(), model.TopicSourceError)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fa.Run(ctx) }()

	select {
	case msg := <-sub.C():
		evt, ok := msg.(model.SourceErrorEvent)
		require.True(t, ok)
		require.Equal(t, "maximo", evt.SourceID)
		require.Equal(t, 2, evt.Failures)
		require.Contains(t, evt.LastErr, "export host down")
	case <-time.After(5 * time.Second):
		t.Fatal("source error event never arrived")
	}

	states := fa.SourceStates()
	require.Len(t, states, 1)
	require.Equal(t, SourceError, states[0].Status)
	require.Equal(t, 2, states[0].ConsecutiveFailures)

	require.NoError(t, fa.EnableSource("maximo"))
	require.Equal(t, SourceActive, fa.SourceStates()[0].Status)

	require.Error(t, fa.EnableSource("ghost"))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fabric did not stop")
	}
}

func TestFabricDisableSkipsPolls(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	polls := make(chan struct{}, 64)
	counting := FetcherFunc(func(ctx context.Context) ([]byte, error) {
		select {
		case polls <- struct{}{}:
		default:
		}
		return []byte(`[]`), nil
	})

	sources := []config.SourceConfig{{
		ID:           "iot-gw",
		Type:         config.SourceTelemetry,
		Format:       "json",
		Priority:     3,
		PollInterval: 10 * time.Millisecond,
		Endpoint:     "http://iot.depot.internal/frames",
	}}
	fa, err := New(st, b, config.IngestionConfig{BufferSize: 16}, sources,
		WithFetcher("iot-gw", counting))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fa.Run(ctx) }()

	// Wait for at least one poll, then disable and verify polling stops.
	select {
	case <-polls:
	case <-time.After(2 * time.Second):
		t.Fatal("poller never fetched")
	}

	require.NoError(t, fa.DisableSource("iot-gw"))
	// Let any in-flight poll finish before measuring.
	time.Sleep(30 * time.Millisecond)
	for len(polls) > 0 {
		<-polls
	}
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, polls, "disabled source kept polling")
	require.Equal(t, SourceDisabled, fa.SourceStates()[0].Status)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("fabric did not stop")
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	q := newQueue(2)
	q.push(Record{SourceID: "a"})
	q.push(Record{SourceID: "b"})
	q.push(Record{SourceID: "c"})

	require.Equal(t, 2, q.depth())
	first := <-q.records()
	second := <-q.records()
	require.Equal(t, "b", first.SourceID)
	require.Equal(t, "c", second.SourceID)
}

func TestFabricRejectsDuplicateSourceIDs(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()
	st := startStore(t, b)

	dup := []config.SourceConfig{
		{ID: "maximo", Type: config.SourceMaintenance, Format: "json", Priority: 8},
		{ID: "maximo", Type: config.SourceTelemetry, Format: "json", Priority: 3},
	}
	_, err := New(st, b, config.IngestionConfig{}, dup)
	require.ErrorContains(t, err, "duplicate source id")
}
