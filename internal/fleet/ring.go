// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fleet

import "github.com/ManuGH/inductd/internal/model"

// sensorRing is a fixed-capacity append-only frame buffer. Oldest frames are
// overwritten once the ring is full.
type sensorRing struct {
	buf  []model.SensorFrame
	next int
	n    int
}

func newSensorRing(capacity int) *sensorRing {
	return &sensorRing{buf: make([]model.SensorFrame, capacity)}
}

func (r *sensorRing) append(f model.SensorFrame) {
	r.buf[r.next] = f
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

// latest returns the newest frame; ok is false on an empty ring.
func (r *sensorRing) latest() (model.SensorFrame, bool) {
	if r.n == 0 {
		return model.SensorFrame{}, false
	}
	idx := (r.next - 1 + len(r.buf)) % len(r.buf)
	return r.buf[idx], true
}

// frames returns a copy ordered oldest to newest.
func (r *sensorRing) frames() []model.SensorFrame {
	out := make([]model.SensorFrame, 0, r.n)
	start := 0
	if r.n == len(r.buf) {
		start = r.next
	}
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// aggregate folds the ring into the snapshot summary for one trainset.
func (r *sensorRing) aggregate(trainsetID string) model.SensorAggregate {
	agg := model.SensorAggregate{TrainsetID: trainsetID, FrameCount: r.n}
	if r.n == 0 {
		return agg
	}
	var tempSum float64
	for _, f := range r.frames() {
		tempSum += f.MotorTempC
		if f.VibrationG > agg.MaxVibration {
			agg.MaxVibration = f.VibrationG
		}
		if len(f.AnomalyTags) > 0 {
			agg.AnomalyFrames++
		}
	}
	agg.MeanMotorTemp = tempSum / float64(r.n)
	last, _ := r.latest()
	agg.BrakeWearPct = last.BrakeWearPct
	agg.HVACFilterPct = last.HVACFilterPct
	agg.BatterySoHPct = last.BatterySoHPct
	agg.PantographBar = last.PantographBar
	agg.LastTimestamp = last.Timestamp
	return agg
}
