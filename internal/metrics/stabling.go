package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shuntingMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inductd_shunting_moves_total",
		Help: "Planned shunting moves by type",
	}, []string{"type"})

	shuntingWaves = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_shunting_waves",
		Help: "Execution waves in the most recent shunting schedule",
	})

	shuntingMinutes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_shunting_minutes",
		Help: "Total estimated shunting minutes in the most recent plan",
	})

	shuntingEnergy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "inductd_shunting_energy_kwh",
		Help: "Total estimated shunting energy in the most recent plan",
	})
)

// RecordShuntingMove counts one planned move of the given type.
func RecordShuntingMove(moveType string) {
	shuntingMovesTotal.WithLabelValues(normalizeMoveType(moveType)).Inc()
}

// SetShuntingPlan updates the gauges describing the latest shunting schedule.
func SetShuntingPlan(waves int, minutes, energyKWh float64) {
	shuntingWaves.Set(float64(waves))
	shuntingMinutes.Set(minutes)
	shuntingEnergy.Set(energyKWh)
}

func normalizeMoveType(t string) string {
	switch t {
	case "DIRECT", "PULL_PUSH", "TRIANGLE":
		return t
	default:
		return "unknown"
	}
}
