// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_ingest_records_total",
		Help: "Total ingestion records by source and normalizer outcome",
	}, []string{"source", "result"})

	ingestQueueDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_ingest_queue_drops_total",
		Help: "Records dropped from the bounded ingestion queue (drop-oldest)",
	}, []string{"source"})

	ingestQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_ingest_queue_depth",
		Help: "Current number of records waiting in the ingestion queue",
	})

	sourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_source_failures_total",
		Help: "Total poll failures per ingestion source",
	}, []string{"source"})

	sourceUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "inductd_source_up",
		Help: "Source availability (1 active, 0 error/disabled)",
	}, []string{"source"})

	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_ingest_conflicts_total",
		Help: "Field-level ingestion conflicts by resolution",
	}, []string{"resolution"})

	anomaliesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_telemetry_anomalies_total",
		Help: "Detected telemetry anomalies by tag",
	}, []string{"tag"})
)

// RecordIngest counts one normalized record outcome for a source.
func RecordIngest(source, result string) {
	ingestRecordsTotal.WithLabelValues(source, normalizeIngestResult(result)).Inc()
}

// IncQueueDrop counts an overflow drop caused by the named source.
func IncQueueDrop(source string) {
	if source == "" {
		source = "unknown"
	}
	ingestQueueDrops.WithLabelValues(source).Inc()
}

// SetQueueDepth updates the ingestion queue depth gauge.
func SetQueueDepth(depth int) {
	ingestQueueDepth.Set(float64(depth))
}

// IncSourceFailure counts one poll failure for a source.
func IncSourceFailure(source string) {
	sourceFailures.WithLabelValues(source).Inc()
}

// SetSourceUp flips the availability gauge for a source.
func SetSourceUp(source string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	sourceUp.WithLabelValues(source).Set(v)
}

// RecordConflict counts one ingestion conflict by resolution mode.
func RecordConflict(resolution string) {
	conflictsTotal.WithLabelValues(normalizeResolution(resolution)).Inc()
}

// RecordAnomaly counts one detected telemetry anomaly tag.
func RecordAnomaly(tag string) {
	if tag == "" {
		tag = "unknown"
	}
	anomaliesTotal.WithLabelValues(tag).Inc()
}

func normalizeIngestResult(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "applied", "rejected", "conflicted":
		return strings.ToLower(strings.TrimSpace(result))
	default:
		return "unknown"
	}
}

func normalizeResolution(resolution string) string {
	switch strings.ToUpper(strings.TrimSpace(resolution)) {
	case "PENDING", "AUTO_PRIORITY", "AUTO_TIMESTAMP", "MANUAL":
		return strings.ToUpper(strings.TrimSpace(resolution))
	default:
		return "UNKNOWN"
	}
}
