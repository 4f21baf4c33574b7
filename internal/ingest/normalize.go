// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/fleet"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
	"github.com/ManuGH/inductd/internal/ratelimit"
)

// normalizer is the single consumer of the record queue. It decodes,
// transforms and applies records in arrival order, so the store sees
// one serialized stream regardless of how many pollers feed it.
type normalizer struct {
	store     *fleet.Store
	bus       bus.Bus
	q         *queue
	sources   map[string]config.SourceConfig
	overrides *overrideStore
	throttle  *ratelimit.Limiter
	logger    zerolog.Logger

	now func() time.Time // test hook
}

func (n *normalizer) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec := <-n.q.records():
			metrics.SetQueueDepth(n.q.depth())
			if _, err := n.process(ctx, rec); err != nil {
				n.logger.Warn().Err(err).Str(log.FieldSourceID, rec.SourceID).Msg("ingest.record.invalid")
			}
		}
	}
}

// process decodes and applies one record, returning the per-delta apply
// results. A decode error rejects the whole record.
func (n *normalizer) process(ctx context.Context, rec Record) ([]fleet.ApplyResult, error) {
	cfg, ok := n.sources[rec.SourceID]
	if !ok {
		metrics.RecordIngest(rec.SourceID, "rejected")
		return nil, fmt.Errorf("unknown source %q", rec.SourceID)
	}
	if rec.Format == "" {
		rec.Format = cfg.Format
	}

	pl, err := decodeRecord(cfg, rec)
	if err != nil {
		metrics.RecordIngest(cfg.ID, "rejected")
		return nil, err
	}

	for _, reason := range pl.rejected {
		metrics.RecordIngest(cfg.ID, "rejected")
		n.logger.Warn().Str(log.FieldSourceID, cfg.ID).Str("reason", reason).Msg("ingest.frame.rejected")
	}

	var results []fleet.ApplyResult

	for _, o := range pl.overrides {
		res, oerr := n.applyOverride(ctx, cfg, o, rec.Timestamp)
		if oerr != nil {
			return results, oerr
		}
		results = append(results, res)
	}

	for _, d := range pl.deltas {
		meta := fleet.SourceMeta{
			SourceID:  cfg.ID,
			Priority:  cfg.Priority,
			Timestamp: rec.Timestamp,
		}
		res, aerr := n.store.Apply(ctx, d, meta)
		if aerr != nil {
			return results, aerr
		}
		n.countResult(cfg.ID, res)
		results = append(results, res)
		if res.Status != fleet.ApplyRejected {
			n.reassert(ctx, d)
		}
	}

	for _, f := range pl.frames {
		if serr := n.store.SensorAppend(ctx, f); serr != nil {
			return results, serr
		}
		metrics.RecordIngest(cfg.ID, "applied")
		n.publishAnomalies(ctx, f)
	}

	return results, nil
}

func (n *normalizer) countResult(sourceID string, res fleet.ApplyResult) {
	switch res.Status {
	case fleet.ApplyApplied:
		metrics.RecordIngest(sourceID, "applied")
	case fleet.ApplyRejected:
		metrics.RecordIngest(sourceID, "rejected")
		n.logger.Warn().
			Str(log.FieldSourceID, sourceID).
			Strs("errors", res.Errors).
			Msg("ingest.delta.rejected")
	case fleet.ApplyConflicted:
		metrics.RecordIngest(sourceID, "conflicted")
	}
}

// applyOverride registers the override in the TTL store and applies its
// delta with manual authority.
func (n *normalizer) applyOverride(ctx context.Context, cfg config.SourceConfig, o Override, ts time.Time) (fleet.ApplyResult, error) {
	o.sourceID = cfg.ID
	o.priority = cfg.Priority

	if !n.overrides.put(o, n.now()) {
		metrics.RecordIngest(cfg.ID, "rejected")
		n.logger.Warn().
			Str(log.FieldTrainsetID, o.TrainsetID).
			Str("authorized_by", o.AuthorizedBy).
			Msg("ingest.override.expired")
		return fleet.ApplyResult{Status: fleet.ApplyRejected, Errors: []string{"override already expired"}}, nil
	}

	meta := fleet.SourceMeta{
		SourceID:  cfg.ID,
		Priority:  cfg.Priority,
		Timestamp: ts,
		Manual:    true,
	}
	res, err := n.store.Apply(ctx, o.delta(), meta)
	if err != nil {
		return res, err
	}
	n.countResult(cfg.ID, res)

	if res.Status == fleet.ApplyRejected {
		// An invalid override must not keep re-asserting itself.
		n.overrides.drop(o.TrainsetID)
		return res, nil
	}

	n.logger.Info().
		Str(log.FieldTrainsetID, o.TrainsetID).
		Str("authorized_by", o.AuthorizedBy).
		Str("reason", o.Reason).
		Msg("ingest.override.applied")
	return res, nil
}

// reassert re-applies an active override after an automatic source wrote
// over one of its pinned fields. The fresh timestamp keeps the re-apply
// from being absorbed by replay dedupe.
func (n *normalizer) reassert(ctx context.Context, d fleet.Delta) {
	o, ok := n.overrides.active(d.TrainsetID)
	if !ok || !o.touches(d) {
		return
	}

	meta := fleet.SourceMeta{
		SourceID:  o.sourceID,
		Priority:  o.priority,
		Timestamp: n.now(),
		Manual:    true,
	}
	res, err := n.store.Apply(ctx, o.delta(), meta)
	if err != nil {
		n.logger.Warn().Err(err).Str(log.FieldTrainsetID, d.TrainsetID).Msg("ingest.override.reassert.failed")
		return
	}
	n.logger.Info().
		Str(log.FieldTrainsetID, d.TrainsetID).
		Str("authorized_by", o.AuthorizedBy).
		Str("status", string(res.Status)).
		Msg("ingest.override.reassert")
}

// publishAnomalies fans anomalous frames out to the alert topics,
// throttled per trainset so a storm cannot flood subscribers.
func (n *normalizer) publishAnomalies(ctx context.Context, f model.SensorFrame) {
	if len(f.AnomalyTags) == 0 {
		return
	}
	health := frameHealth(f)
	for _, tag := range f.AnomalyTags {
		metrics.RecordAnomaly(tag)

		severity := severityFor(tag)
		if !n.throttle.Allow(f.TrainsetID, severity) {
			continue
		}

		topic := model.TopicAlertWarning
		if severity == "critical" {
			topic = model.TopicAlertCritical
		}
		evt := model.AlertEvent{
			TrainsetID: f.TrainsetID,
			Component:  componentFor(tag),
			Tag:        tag,
			Detail:     fmt.Sprintf("frame health %.0f/100", health),
			At:         time.Unix(f.Timestamp, 0).UTC(),
		}
		if n.bus == nil {
			continue
		}
		if err := n.bus.Publish(ctx, topic, evt); err != nil {
			n.logger.Warn().Err(err).Str(log.FieldTopic, topic).Msg("ingest.alert.publish")
		}
	}
}
