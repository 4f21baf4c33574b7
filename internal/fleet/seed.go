// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fleet

import (
	"fmt"
	"time"

	"github.com/ManuGH/inductd/internal/model"
)

// DefaultDepotLayout returns the reference yard geometry: four stabling
// tracks of six bays each plus a service track with maintenance, inspection
// and cleaning positions (30 bays total).
func DefaultDepotLayout() ([]model.Bay, []model.Track) {
	tracks := []model.Track{
		{ID: "S1", OffsetM: 0},
		{ID: "S2", OffsetM: 40},
		{ID: "S3", OffsetM: 80},
		{ID: "S4", OffsetM: 120},
		{ID: "M1", OffsetM: 200},
	}
	var bays []model.Bay
	for _, trackID := range []string{"S1", "S2", "S3", "S4"} {
		for pos := 1; pos <= 6; pos++ {
			bays = append(bays, model.Bay{
				ID:       fmt.Sprintf("%s-%02d", trackID, pos),
				TrackID:  trackID,
				Position: pos,
				Type:     model.BayStabling,
			})
		}
	}
	serviceTypes := []model.BayType{
		model.BayMaintenance, model.BayMaintenance,
		model.BayInspection, model.BayInspection,
		model.BayCleaning, model.BayCleaning,
	}
	for i, bt := range serviceTypes {
		bays = append(bays, model.Bay{
			ID:       fmt.Sprintf("M1-%02d", i+1),
			TrackID:  "M1",
			Position: i + 1,
			Type:     bt,
		})
	}
	return bays, tracks
}

// SeedDeltas returns n deterministic fixture trainsets as appliable deltas.
// The mix mirrors a realistic end-of-service fleet: varied mileage and
// fitness, a few open jobs, one emergency case, some branding contracts.
func SeedDeltas(n int, now time.Time) []Delta {
	deltas := make([]Delta, 0, n)
	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("TS-%02d", i)
		status := model.StatusAvailable
		fitness := 6.0 + float64(i%5)
		if fitness > 10 {
			fitness = 10
		}
		mileage := int64(40000 + i*800)
		hours := 3000.0 + float64(i)*120
		cleared := true
		energy := 400.0 + float64(i%7)*50

		d := Delta{
			TrainsetID:     id,
			Status:         &status,
			FitnessScore:   &fitness,
			MileageKM:      &mileage,
			OperatingHours: &hours,
			Cleared:        &cleared,
			EnergyKWh:      &energy,
			FitnessExpiry: map[model.Department]time.Time{
				model.DeptRollingStock: now.AddDate(0, 0, 30+i),
				model.DeptSignalling:   now.AddDate(0, 0, 45+i),
				model.DeptTelecom:      now.AddDate(0, 0, 60+i),
			},
		}

		switch {
		case i%9 == 0:
			jobs := []model.JobCard{{
				ID:             fmt.Sprintf("JC-%02d-1", i),
				TrainsetID:     id,
				Priority:       model.PriorityEmergency,
				EstimatedHours: 6,
				WorkType:       "brake-overhaul",
			}}
			d.OpenJobs = jobs
		case i%4 == 0:
			jobs := []model.JobCard{{
				ID:             fmt.Sprintf("JC-%02d-1", i),
				TrainsetID:     id,
				Priority:       model.PriorityMedium,
				EstimatedHours: 2,
				WorkType:       "hvac-filter",
			}}
			d.OpenJobs = jobs
		}

		if i%5 == 0 {
			d.Branding = &model.BrandingContract{
				AdvertiserID:  fmt.Sprintf("ADV-%d", i/5),
				TargetHours:   8,
				ExposureHours: float64(i % 8),
				Revenue:       120000,
				Penalty:       15000,
				Deadline:      now.AddDate(0, 1, 0),
			}
		}

		if i%6 == 0 {
			d.NeedsCleaning = boolPtr(true)
		}
		if i%11 == 0 {
			d.NeedsInspection = boolPtr(true)
		}

		dep := time.Date(now.Year(), now.Month(), now.Day(), 5+(i%5), 30, 0, 0, now.Location()).AddDate(0, 0, 1)
		d.NextDeparture = &dep

		deltas = append(deltas, d)
	}
	return deltas
}

func boolPtr(b bool) *bool { return &b }
