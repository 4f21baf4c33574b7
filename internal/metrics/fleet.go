package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	applyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_fleet_apply_total",
		Help: "Store delta applications by outcome",
	}, []string{"result"})

	sensorFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inductd_fleet_sensor_frames_total",
		Help: "Sensor frames appended to per-trainset rings",
	})

	conflictsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_fleet_conflicts_open",
		Help: "Unresolved ingestion conflicts currently held by the store",
	})
)

// RecordApply counts one Apply outcome (applied, rejected, conflicted).
func RecordApply(result string) {
	applyTotal.WithLabelValues(normalizeIngestResult(result)).Inc()
}

// IncSensorFrame counts one appended sensor frame.
func IncSensorFrame() {
	sensorFramesTotal.Inc()
}

// SetOpenConflicts updates the unresolved-conflict gauge.
func SetOpenConflicts(n int) {
	conflictsOpen.Set(float64(n))
}
