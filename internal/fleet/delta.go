// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fleet

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/inductd/internal/model"
)

// Delta is a field-level update against one trainset. Nil pointers leave the
// field untouched; non-nil values replace it. OpenJobs replaces the whole job
// set when non-nil. A Clearance entry updates the department sign-off table
// rather than the trainset record itself.
type Delta struct {
	TrainsetID string `json:"trainsetId"`

	Status           *model.TrainsetStatus          `json:"status,omitempty"`
	FitnessScore     *float64                       `json:"fitnessScore,omitempty"`
	FitnessExpiry    map[model.Department]time.Time `json:"fitnessExpiry,omitempty"`
	MileageKM        *int64                         `json:"mileageKm,omitempty"`
	OperatingHours   *float64                       `json:"operatingHours,omitempty"`
	OpenJobs         []model.JobCard                `json:"openJobs,omitempty"`
	Branding         *model.BrandingContract        `json:"branding,omitempty"`
	LastMaintenance  *time.Time                     `json:"lastMaintenance,omitempty"`
	NextMaintenance  *time.Time                     `json:"nextMaintenance,omitempty"`
	NextDeparture    *time.Time                     `json:"nextDeparture,omitempty"`
	CurrentBay       *string                        `json:"currentBay,omitempty"`
	Cleared          *bool                          `json:"cleared,omitempty"`
	EnergyKWh        *float64                       `json:"energyKwh,omitempty"`
	NeedsCleaning    *bool                          `json:"needsCleaning,omitempty"`
	NeedsInspection  *bool                          `json:"needsInspection,omitempty"`
	MaintenanceScore *float64                       `json:"maintenanceScore,omitempty"`
	DefectCount      *int                           `json:"defectCount,omitempty"`

	Clearance *model.Clearance `json:"clearance,omitempty"`
}

// Empty reports whether the delta carries no field at all.
func (d *Delta) Empty() bool {
	return d.Status == nil && d.FitnessScore == nil && len(d.FitnessExpiry) == 0 &&
		d.MileageKM == nil && d.OperatingHours == nil && d.OpenJobs == nil &&
		d.Branding == nil && d.LastMaintenance == nil && d.NextMaintenance == nil &&
		d.NextDeparture == nil && d.CurrentBay == nil && d.Cleared == nil &&
		d.EnergyKWh == nil && d.NeedsCleaning == nil && d.NeedsInspection == nil &&
		d.MaintenanceScore == nil && d.DefectCount == nil && d.Clearance == nil
}

// fieldChange is one contested unit of a delta: a stable path for conflict
// bookkeeping, a canonical value string for candidate comparison, and the
// mutation to run when the change wins.
type fieldChange struct {
	path  string
	value string
	apply func(s *Store, t *model.Trainset)
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func jobsValue(jobs []model.JobCard) string {
	parts := make([]string, 0, len(jobs))
	for _, j := range jobs {
		parts = append(parts, j.ID+":"+string(j.Priority))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func brandingValue(b *model.BrandingContract) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", b.AdvertiserID, fmtFloat(b.TargetHours), fmtFloat(b.ExposureHours))
}

func clearanceValue(c *model.Clearance) string {
	return fmt.Sprintf("%s:%s:%s", c.Status, fmtTime(c.ValidFrom), fmtTime(c.ValidTo))
}

// changes flattens the delta into per-field units ordered deterministically.
func (d *Delta) changes() []fieldChange {
	prefix := "trainset/" + d.TrainsetID + "/"
	var out []fieldChange

	if d.Status != nil {
		v := *d.Status
		out = append(out, fieldChange{prefix + "status", string(v), func(_ *Store, t *model.Trainset) { t.Status = v }})
	}
	if d.FitnessScore != nil {
		v := *d.FitnessScore
		out = append(out, fieldChange{prefix + "fitnessScore", fmtFloat(v), func(_ *Store, t *model.Trainset) { t.FitnessScore = v }})
	}
	if len(d.FitnessExpiry) > 0 {
		depts := make([]model.Department, 0, len(d.FitnessExpiry))
		for dept := range d.FitnessExpiry {
			depts = append(depts, dept)
		}
		sort.Slice(depts, func(i, j int) bool { return depts[i] < depts[j] })
		for _, dept := range depts {
			dept, exp := dept, d.FitnessExpiry[dept]
			out = append(out, fieldChange{prefix + "fitnessExpiry." + string(dept), fmtTime(exp), func(_ *Store, t *model.Trainset) {
				if t.FitnessExpiry == nil {
					t.FitnessExpiry = make(map[model.Department]time.Time, len(model.Departments))
				}
				t.FitnessExpiry[dept] = exp
			}})
		}
	}
	if d.MileageKM != nil {
		v := *d.MileageKM
		out = append(out, fieldChange{prefix + "mileageKm", strconv.FormatInt(v, 10), func(_ *Store, t *model.Trainset) { t.MileageKM = v }})
	}
	if d.OperatingHours != nil {
		v := *d.OperatingHours
		out = append(out, fieldChange{prefix + "operatingHours", fmtFloat(v), func(_ *Store, t *model.Trainset) { t.OperatingHours = v }})
	}
	if d.OpenJobs != nil {
		jobs := make([]model.JobCard, len(d.OpenJobs))
		copy(jobs, d.OpenJobs)
		out = append(out, fieldChange{prefix + "openJobs", jobsValue(jobs), func(_ *Store, t *model.Trainset) { t.OpenJobs = jobs }})
	}
	if d.Branding != nil {
		b := *d.Branding
		out = append(out, fieldChange{prefix + "branding", brandingValue(&b), func(_ *Store, t *model.Trainset) { t.Branding = &b }})
	}
	if d.LastMaintenance != nil {
		v := *d.LastMaintenance
		out = append(out, fieldChange{prefix + "lastMaintenance", fmtTime(v), func(_ *Store, t *model.Trainset) { t.LastMaintenance = &v }})
	}
	if d.NextMaintenance != nil {
		v := *d.NextMaintenance
		out = append(out, fieldChange{prefix + "nextMaintenance", fmtTime(v), func(_ *Store, t *model.Trainset) { t.NextMaintenance = &v }})
	}
	if d.NextDeparture != nil {
		v := *d.NextDeparture
		out = append(out, fieldChange{prefix + "nextDeparture", fmtTime(v), func(_ *Store, t *model.Trainset) { t.NextDeparture = &v }})
	}
	if d.CurrentBay != nil {
		v := *d.CurrentBay
		out = append(out, fieldChange{prefix + "currentBay", v, func(s *Store, t *model.Trainset) { s.moveOccupant(t, v) }})
	}
	if d.Cleared != nil {
		v := *d.Cleared
		out = append(out, fieldChange{prefix + "cleared", strconv.FormatBool(v), func(_ *Store, t *model.Trainset) { t.Cleared = v }})
	}
	if d.EnergyKWh != nil {
		v := *d.EnergyKWh
		out = append(out, fieldChange{prefix + "energyKwh", fmtFloat(v), func(_ *Store, t *model.Trainset) { t.EnergyKWh = v }})
	}
	if d.NeedsCleaning != nil {
		v := *d.NeedsCleaning
		out = append(out, fieldChange{prefix + "needsCleaning", strconv.FormatBool(v), func(_ *Store, t *model.Trainset) { t.NeedsCleaning = v }})
	}
	if d.NeedsInspection != nil {
		v := *d.NeedsInspection
		out = append(out, fieldChange{prefix + "needsInspection", strconv.FormatBool(v), func(_ *Store, t *model.Trainset) { t.NeedsInspection = v }})
	}
	if d.MaintenanceScore != nil {
		v := *d.MaintenanceScore
		out = append(out, fieldChange{prefix + "maintenanceScore", fmtFloat(v), func(_ *Store, t *model.Trainset) { t.MaintenanceScore = v }})
	}
	if d.DefectCount != nil {
		v := *d.DefectCount
		out = append(out, fieldChange{prefix + "defectCount", strconv.Itoa(v), func(_ *Store, t *model.Trainset) { t.DefectCount = v }})
	}
	if d.Clearance != nil {
		c := *d.Clearance
		if c.TrainsetID == "" {
			c.TrainsetID = d.TrainsetID
		}
		out = append(out, fieldChange{
			"clearance/" + d.TrainsetID + "/" + string(c.Department),
			clearanceValue(&c),
			func(s *Store, t *model.Trainset) { s.setClearance(t, c) },
		})
	}
	return out
}

// validate checks the delta against store invariants. The store state is
// untouched: a single bad field rejects the whole delta.
func (s *Store) validate(d *Delta) []string {
	var errs []string
	if d.TrainsetID == "" {
		errs = append(errs, (&ValidationError{Field: "trainsetId", Reason: "required"}).Error())
	}
	if d.Empty() {
		errs = append(errs, (&ValidationError{Field: "delta", Reason: "no fields set"}).Error())
	}
	if d.Status != nil && !model.ValidStatus(*d.Status) {
		errs = append(errs, (&ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *d.Status)}).Error())
	}
	if d.FitnessScore != nil && (*d.FitnessScore < 0 || *d.FitnessScore > 10) {
		errs = append(errs, (&ValidationError{Field: "fitnessScore", Reason: "must be in [0,10]"}).Error())
	}
	if d.MileageKM != nil && *d.MileageKM < 0 {
		errs = append(errs, (&ValidationError{Field: "mileageKm", Reason: "must be non-negative"}).Error())
	}
	if d.OperatingHours != nil && *d.OperatingHours < 0 {
		errs = append(errs, (&ValidationError{Field: "operatingHours", Reason: "must be non-negative"}).Error())
	}
	if d.MaintenanceScore != nil && *d.MaintenanceScore < 0 {
		errs = append(errs, (&ValidationError{Field: "maintenanceScore", Reason: "must be non-negative"}).Error())
	}
	if d.DefectCount != nil && *d.DefectCount < 0 {
		errs = append(errs, (&ValidationError{Field: "defectCount", Reason: "must be non-negative"}).Error())
	}
	if d.EnergyKWh != nil && *d.EnergyKWh < 0 {
		errs = append(errs, (&ValidationError{Field: "energyKwh", Reason: "must be non-negative"}).Error())
	}
	if d.CurrentBay != nil && *d.CurrentBay != "" {
		if err := s.checkBayFree(*d.CurrentBay, d.TrainsetID); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if c := d.Clearance; c != nil {
		switch c.Department {
		case model.DeptRollingStock, model.DeptSignalling, model.DeptTelecom:
		default:
			errs = append(errs, (&ValidationError{Field: "clearance.department", Reason: fmt.Sprintf("unknown department %q", c.Department)}).Error())
		}
		switch c.Status {
		case model.ClearanceCleared, model.ClearancePending, model.ClearanceFailed:
		default:
			errs = append(errs, (&ValidationError{Field: "clearance.status", Reason: fmt.Sprintf("unknown status %q", c.Status)}).Error())
		}
		if c.ValidTo.Before(c.ValidFrom) {
			errs = append(errs, (&ValidationError{Field: "clearance.window", Reason: "validTo before validFrom"}).Error())
		}
	}
	return errs
}
