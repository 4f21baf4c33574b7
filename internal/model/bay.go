// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// BayType classifies a stabling position by its purpose.
type BayType string

const (
	BayStabling    BayType = "STABLING"
	BayInspection  BayType = "INSPECTION"
	BayMaintenance BayType = "MAINTENANCE"
	BayCleaning    BayType = "CLEANING"
)

// Bay is a physical depot position. Position 1 is nearest the depot exit.
// At most one trainset occupies a bay.
type Bay struct {
	ID       string  `json:"id"`
	TrackID  string  `json:"trackId"`
	Position int     `json:"position"`
	Type     BayType `json:"type"`
	Occupant string  `json:"occupant,omitempty"` // trainset id, empty when free
}

// Track is a depot track; OffsetM is its lateral distance in metres from the
// exit switch, used for shunting distance estimates.
type Track struct {
	ID      string  `json:"id"`
	OffsetM float64 `json:"offsetM"`
}

// SensorFrame is one immutable telemetry sample for a trainset.
type SensorFrame struct {
	TrainsetID      string    `json:"trainsetId"`
	Timestamp       int64     `json:"timestamp"` // unix seconds
	MotorTempC      float64   `json:"motorTempC"`
	VibrationG      float64   `json:"vibrationG"`
	BrakeWearPct    float64   `json:"brakeWearPct"`
	HVACFilterPct   float64   `json:"hvacFilterPct"`
	BatterySoHPct   float64   `json:"batterySohPct"`
	PantographBar   float64   `json:"pantographBar"`
	EnergyKWh       float64   `json:"energyKwh,omitempty"`
	AnomalyTags     []string  `json:"anomalyTags,omitempty"`
}

// SensorAggregate summarises a trainset's recent frames for snapshot readers.
type SensorAggregate struct {
	TrainsetID    string  `json:"trainsetId"`
	FrameCount    int     `json:"frameCount"`
	AnomalyFrames int     `json:"anomalyFrames,omitempty"`
	MeanMotorTemp float64 `json:"meanMotorTemp"`
	MaxVibration  float64 `json:"maxVibration"`
	BrakeWearPct  float64 `json:"brakeWearPct"`  // latest
	HVACFilterPct float64 `json:"hvacFilterPct"` // latest
	BatterySoHPct float64 `json:"batterySohPct"` // latest
	PantographBar float64 `json:"pantographBar"` // latest
	LastTimestamp int64   `json:"lastTimestamp"`
}

// Anomaly tags attached to sensor frames by the standing telemetry checks.
const (
	AnomalyHighTemperature    = "HIGH_TEMPERATURE"
	AnomalyExcessiveVibration = "EXCESSIVE_VIBRATION"
	AnomalyCriticalBrakeWear  = "CRITICAL_BRAKE_WEAR"
	AnomalyPantographPressure = "PANTOGRAPH_PRESSURE_ANOMALY"
)

// Anomalies evaluates the standing telemetry thresholds against the frame.
// A zero pantograph reading means "no sample" and is never flagged.
func (f SensorFrame) Anomalies() []string {
	var tags []string
	if f.MotorTempC > 40 {
		tags = append(tags, AnomalyHighTemperature)
	}
	if f.VibrationG > 2.5 {
		tags = append(tags, AnomalyExcessiveVibration)
	}
	if f.BrakeWearPct > 90 {
		tags = append(tags, AnomalyCriticalBrakeWear)
	}
	if f.PantographBar != 0 && (f.PantographBar < 4 || f.PantographBar > 6) {
		tags = append(tags, AnomalyPantographPressure)
	}
	return tags
}
