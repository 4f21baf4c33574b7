// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/model"
)

// payload is the normalizer-ready form of one decoded record.
type payload struct {
	deltas    []fleet.Delta
	frames    []model.SensorFrame
	rejected  []string // per-item reasons for skipped entries
	overrides []Override
}

// decodeRecord turns raw source bytes into apply-ready material.
func decodeRecord(cfg config.SourceConfig, rec Record) (payload, error) {
	if cfg.Format == "csv" && cfg.Type != config.SourceMaintenance {
		return payload{}, fmt.Errorf("source %s: csv format is only supported for maintenance exports", cfg.ID)
	}

	switch cfg.Type {
	case config.SourceMaintenance:
		deltas, err := decodeMaintenance(rec.Format, rec.Bytes)
		return payload{deltas: deltas}, err
	case config.SourceTelemetry:
		frames, rejected, err := decodeTelemetry(rec.Bytes)
		return payload{frames: frames, rejected: rejected}, err
	case config.SourceStream:
		return decodeStream(rec.Bytes)
	case config.SourceOverride:
		o, err := decodeOverride(rec.Bytes)
		if err != nil {
			return payload{}, err
		}
		return payload{overrides: []Override{o}}, nil
	case config.SourceClearance:
		deltas, err := decodeClearances(rec.Bytes)
		return payload{deltas: deltas}, err
	default:
		return payload{}, fmt.Errorf("source %s: unknown type %q", cfg.ID, cfg.Type)
	}
}

// ---- maintenance export ----

type jobRecord struct {
	ID             string     `json:"id"`
	Priority       string     `json:"priority"`
	EstimatedHours float64    `json:"estimatedHours"`
	WorkType       string     `json:"workType,omitempty"`
	RequiredParts  []string   `json:"requiredParts,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
}

type maintenanceRecord struct {
	TrainsetID      string      `json:"trainsetId"`
	Status          string      `json:"status,omitempty"`
	MileageKM       *int64      `json:"mileageKm,omitempty"`
	OperatingHours  *float64    `json:"operatingHours,omitempty"`
	DefectCount     *int        `json:"defectCount,omitempty"`
	LastMaintenance *time.Time  `json:"lastMaintenance,omitempty"`
	NextMaintenance *time.Time  `json:"nextMaintenance,omitempty"`
	Jobs            []jobRecord `json:"jobs,omitempty"`
}

func decodeMaintenance(format string, b []byte) ([]fleet.Delta, error) {
	switch format {
	case "csv":
		return decodeMaintenanceCSV(b)
	default:
		var records []maintenanceRecord
		if err := json.Unmarshal(b, &records); err != nil {
			return nil, fmt.Errorf("decode maintenance json: %w", err)
		}
		deltas := make([]fleet.Delta, 0, len(records))
		for _, r := range records {
			deltas = append(deltas, maintenanceDelta(r))
		}
		return deltas, nil
	}
}

func maintenanceDelta(r maintenanceRecord) fleet.Delta {
	d := fleet.Delta{TrainsetID: r.TrainsetID}
	if r.Status != "" {
		s := model.TrainsetStatus(r.Status)
		d.Status = &s
	}
	d.MileageKM = r.MileageKM
	d.OperatingHours = r.OperatingHours
	d.DefectCount = r.DefectCount
	d.LastMaintenance = r.LastMaintenance
	d.NextMaintenance = r.NextMaintenance
	if r.Jobs != nil {
		d.OpenJobs = lo.Map(r.Jobs, func(j jobRecord, _ int) model.JobCard {
			return model.JobCard{
				ID:             j.ID,
				TrainsetID:     r.TrainsetID,
				Priority:       model.JobPriority(j.Priority),
				EstimatedHours: j.EstimatedHours,
				WorkType:       j.WorkType,
				RequiredParts:  j.RequiredParts,
				Deadline:       j.Deadline,
			}
		})
	}
	if r.MileageKM != nil || r.OperatingHours != nil || r.DefectCount != nil {
		var mileage int64
		var hours float64
		var defects int
		if r.MileageKM != nil {
			mileage = *r.MileageKM
		}
		if r.OperatingHours != nil {
			hours = *r.OperatingHours
		}
		if r.DefectCount != nil {
			defects = *r.DefectCount
		}
		score := maintenanceScore(mileage, hours, defects)
		d.MaintenanceScore = &score
	}
	return d
}

// maintenanceScore derives a wear score from odometer and defect data.
// Starts at 100 and deducts per threshold, floored at zero.
func maintenanceScore(mileageKM int64, hours float64, defects int) float64 {
	score := 100.0
	if mileageKM > 100000 {
		score -= 10
	}
	if mileageKM > 150000 {
		score -= 15
	}
	if hours > 8000 {
		score -= 10
	}
	if hours > 10000 {
		score -= 15
	}
	if defects < 0 {
		defects = -defects
	}
	score -= 5 * float64(defects)
	if score < 0 {
		score = 0
	}
	return score
}

// decodeMaintenanceCSV parses a tabular export: one row per job card,
// trainset-level columns repeated. Rows are grouped by trainset_id.
func decodeMaintenanceCSV(b []byte) ([]fleet.Delta, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("decode maintenance csv: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := col["trainset_id"]; !ok {
		return nil, fmt.Errorf("decode maintenance csv: missing trainset_id column")
	}

	cell := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	byID := make(map[string]*maintenanceRecord)
	var order []string

	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode maintenance csv: row %d: %w", line, err)
		}

		id := cell(row, "trainset_id")
		if id == "" {
			return nil, fmt.Errorf("decode maintenance csv: row %d: empty trainset_id", line)
		}

		rec, seen := byID[id]
		if !seen {
			rec = &maintenanceRecord{TrainsetID: id}
			byID[id] = rec
			order = append(order, id)

			rec.Status = cell(row, "status")
			if v := cell(row, "mileage_km"); v != "" {
				n, err := strconv.ParseInt(v, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: mileage_km: %w", line, err)
				}
				rec.MileageKM = &n
			}
			if v := cell(row, "operating_hours"); v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: operating_hours: %w", line, err)
				}
				rec.OperatingHours = &f
			}
			if v := cell(row, "defect_count"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: defect_count: %w", line, err)
				}
				rec.DefectCount = &n
			}
			if v := cell(row, "last_maintenance"); v != "" {
				ts, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: last_maintenance: %w", line, err)
				}
				rec.LastMaintenance = &ts
			}
			if v := cell(row, "next_maintenance"); v != "" {
				ts, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: next_maintenance: %w", line, err)
				}
				rec.NextMaintenance = &ts
			}
			// A grouped export always replaces the open-job set, even
			// when the trainset has no rows with a job id.
			rec.Jobs = []jobRecord{}
		}

		if jobID := cell(row, "job_id"); jobID != "" {
			j := jobRecord{
				ID:       jobID,
				Priority: cell(row, "job_priority"),
				WorkType: cell(row, "job_work_type"),
			}
			if v := cell(row, "job_hours"); v != "" {
				f, err := strconv.ParseFloat(v, 64)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: job_hours: %w", line, err)
				}
				j.EstimatedHours = f
			}
			if v := cell(row, "job_deadline"); v != "" {
				ts, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return nil, fmt.Errorf("decode maintenance csv: row %d: job_deadline: %w", line, err)
				}
				j.Deadline = &ts
			}
			rec.Jobs = append(rec.Jobs, j)
		}
	}

	deltas := make([]fleet.Delta, 0, len(order))
	for _, id := range order {
		deltas = append(deltas, maintenanceDelta(*byID[id]))
	}
	return deltas, nil
}

// ---- IoT telemetry ----

func decodeTelemetry(b []byte) ([]model.SensorFrame, []string, error) {
	var frames []model.SensorFrame
	if err := json.Unmarshal(b, &frames); err != nil {
		return nil, nil, fmt.Errorf("decode telemetry: %w", err)
	}

	valid := frames[:0]
	var rejected []string
	for i, f := range frames {
		if reason := validateFrame(f); reason != "" {
			rejected = append(rejected, fmt.Sprintf("frame %d (%s): %s", i, f.TrainsetID, reason))
			continue
		}
		if len(f.AnomalyTags) == 0 {
			f.AnomalyTags = f.Anomalies()
		}
		valid = append(valid, f)
	}
	return valid, rejected, nil
}

// validateFrame applies the telemetry range contract. Returns the reason
// a frame is unusable, or "" when it passes.
func validateFrame(f model.SensorFrame) string {
	switch {
	case f.TrainsetID == "":
		return "missing trainsetId"
	case f.Timestamp <= 0:
		return "missing timestamp"
	case f.MotorTempC < -50 || f.MotorTempC > 100:
		return fmt.Sprintf("motor temperature %.1f outside [-50,100]", f.MotorTempC)
	case f.VibrationG < 0:
		return fmt.Sprintf("negative vibration %.2f", f.VibrationG)
	}
	return ""
}

// frameHealth scores a single frame 0..100 from its anomaly tags. Shown
// in alert details so operators can rank simultaneous warnings.
func frameHealth(f model.SensorFrame) float64 {
	health := 100.0
	for _, tag := range f.AnomalyTags {
		switch tag {
		case model.AnomalyHighTemperature:
			health -= 25
		case model.AnomalyCriticalBrakeWear:
			health -= 30
		case model.AnomalyExcessiveVibration:
			health -= 20
		case model.AnomalyPantographPressure:
			health -= 15
		}
	}
	if health < 0 {
		health = 0
	}
	return health
}

// ---- stream bus ----

type streamEnvelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// decodeStream routes an enveloped message to the transformer matching
// its topic.
func decodeStream(b []byte) (payload, error) {
	var env streamEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return payload{}, fmt.Errorf("decode stream envelope: %w", err)
	}

	switch env.Topic {
	case "telemetry":
		frames, rejected, err := decodeTelemetry(env.Payload)
		return payload{frames: frames, rejected: rejected}, err
	case "maintenance":
		deltas, err := decodeMaintenance("json", env.Payload)
		return payload{deltas: deltas}, err
	case "clearance":
		deltas, err := decodeClearances(env.Payload)
		return payload{deltas: deltas}, err
	case "override":
		o, err := decodeOverride(env.Payload)
		if err != nil {
			return payload{}, err
		}
		return payload{overrides: []Override{o}}, nil
	default:
		return payload{}, fmt.Errorf("decode stream envelope: unknown topic %q", env.Topic)
	}
}

// ---- department clearance ----

type clearanceRecord struct {
	Department string    `json:"department"`
	TrainsetID string    `json:"trainsetId"`
	Status     string    `json:"status"`
	ValidFrom  time.Time `json:"validFrom"`
	ValidTo    time.Time `json:"validTo"`
}

func decodeClearances(b []byte) ([]fleet.Delta, error) {
	var records []clearanceRecord
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("decode clearances: %w", err)
	}

	deltas := make([]fleet.Delta, 0, len(records))
	for i, r := range records {
		if r.TrainsetID == "" {
			return nil, fmt.Errorf("decode clearances: record %d: missing trainsetId", i)
		}
		if r.Department == "" {
			return nil, fmt.Errorf("decode clearances: record %d: missing department", i)
		}
		deltas = append(deltas, fleet.Delta{
			TrainsetID: r.TrainsetID,
			Clearance: &model.Clearance{
				Department: model.Department(r.Department),
				TrainsetID: r.TrainsetID,
				Status:     model.ClearanceStatus(r.Status),
				ValidFrom:  r.ValidFrom,
				ValidTo:    r.ValidTo,
			},
		})
	}
	return deltas, nil
}
