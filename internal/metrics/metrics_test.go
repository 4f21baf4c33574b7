// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.Handler().ServeHTTP(recorder, req)
	return recorder.Body.String()
}

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	if _, err := srv.Client().Get(srv.URL); err != nil {
		t.Fatal(err)
	}
}

func TestRecordIngest(t *testing.T) {
	tests := []struct {
		name   string
		source string
		result string
		want   string
	}{
		{
			name:   "applied record",
			source: "maximo",
			result: "applied",
			want:   `result="applied"`,
		},
		{
			name:   "rejected record",
			source: "iot",
			result: "rejected",
			want:   `result="rejected"`,
		},
		{
			name:   "unknown result is normalized",
			source: "iot",
			result: "weird",
			want:   `result="unknown"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics.RecordIngest(tt.source, tt.result)

			body := scrape(t)
			if !strings.Contains(body, "inductd_ingest_records_total") {
				t.Error("expected inductd_ingest_records_total metric to be present")
			}
			if !strings.Contains(body, tt.want) {
				t.Errorf("expected label %q in metrics output", tt.want)
			}
		})
	}
}

func TestRecordPlanOutcomes(t *testing.T) {
	metrics.RecordPlan("completed")
	metrics.RecordPlan("failed")
	metrics.RecordPlan("bogus")

	body := scrape(t)
	for _, want := range []string{
		`inductd_plans_total{result="completed"}`,
		`inductd_plans_total{result="failed"}`,
		`inductd_plans_total{result="unknown"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestSolverDurationLabels(t *testing.T) {
	metrics.ObserveSolverDuration("ga", 0.25)
	metrics.ObserveSolverDuration("simplex", 0.01)

	body := scrape(t)
	if !strings.Contains(body, `solver="ga"`) {
		t.Error("expected ga solver label in metrics")
	}
	if !strings.Contains(body, `solver="unknown"`) {
		t.Error("expected unknown solver label for unrecognized name")
	}
}

func TestShuntingMoveTypes(t *testing.T) {
	metrics.RecordShuntingMove("DIRECT")
	metrics.RecordShuntingMove("PULL_PUSH")
	metrics.RecordShuntingMove("sideways")
	metrics.SetShuntingPlan(2, 42.5, 180)

	body := scrape(t)
	for _, want := range []string{
		`inductd_shunting_moves_total{type="DIRECT"}`,
		`inductd_shunting_moves_total{type="PULL_PUSH"}`,
		`inductd_shunting_moves_total{type="unknown"}`,
		"inductd_shunting_waves 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in metrics output", want)
		}
	}
}

func TestSourceGauges(t *testing.T) {
	metrics.SetSourceUp("maximo", true)
	metrics.SetSourceUp("iot", false)
	metrics.IncSourceFailure("iot")

	body := scrape(t)
	if !strings.Contains(body, `inductd_ingest_source_up{source="maximo"} 1`) {
		t.Error("expected maximo source to be up")
	}
	if !strings.Contains(body, `inductd_ingest_source_up{source="iot"} 0`) {
		t.Error("expected iot source to be down")
	}
}

func TestConflictResolutionNormalization(t *testing.T) {
	metrics.RecordConflict("AUTO_PRIORITY")
	metrics.RecordConflict("made-up")

	body := scrape(t)
	if !strings.Contains(body, `resolution="AUTO_PRIORITY"`) {
		t.Error("expected AUTO_PRIORITY resolution label")
	}
	if !strings.Contains(body, `resolution="unknown"`) {
		t.Error("expected unknown resolution label")
	}
}
