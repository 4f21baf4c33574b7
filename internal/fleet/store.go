// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fleet

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/bus"
	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/metrics"
	"github.com/ManuGH/inductd/internal/model"
)

// writeStamp remembers the last accepted write per field path so overlapping
// source claims inside the conflict window can be detected.
type writeStamp struct {
	sourceID  string
	value     string
	priority  int
	manual    bool
	at        time.Time // source-reported instant
	appliedAt time.Time // writer wall clock
}

// pendingConflict keeps the deferred mutation of an unresolved conflict so a
// manual resolution can still apply the losing candidate.
type pendingConflict struct {
	trainsetID string
	appliers   map[string]func(*Store, *model.Trainset)
}

type applyReq struct {
	delta Delta
	meta  SourceMeta
	reply chan ApplyResult
}

type snapshotReq struct {
	reply chan model.FleetSnapshot
}

type sensorReq struct {
	frame model.SensorFrame
	reply chan error
}

type conflictsReq struct {
	includeResolved bool
	reply           chan []model.Conflict
}

type resolveReq struct {
	conflictID string
	sourceID   string
	resolvedBy string
	reply      chan error
}

type layoutReq struct {
	bays   []model.Bay
	tracks []model.Track
	reply  chan error
}

// Store is the single-writer fleet state owner. All exported methods hand the
// operation to the writer goroutine started by Run; a writer panic is
// deliberately not recovered so corrupted state can never leak into a plan.
type Store struct {
	opts   Options
	bus    bus.Bus
	logger zerolog.Logger
	now    func() time.Time

	applyCh    chan applyReq
	snapCh     chan snapshotReq
	sensorCh   chan sensorReq
	conflictCh chan conflictsReq
	resolveCh  chan resolveReq
	layoutCh   chan layoutReq
	done       chan struct{}

	// Writer-owned state. Never touched outside the Run goroutine.
	trainsets  map[string]*model.Trainset
	bays       map[string]*model.Bay
	bayOrder   []string
	tracks     map[string]model.Track
	trackOrder []string
	rings      map[string]*sensorRing
	clearances map[string]map[model.Department]model.Clearance
	conflicts  map[string]*model.Conflict
	pending    map[string]pendingConflict
	lastWrites map[string]writeStamp
	seen       map[uint64]time.Time
}

// New builds a stopped store; call Run to start the writer.
func New(b bus.Bus, opts Options) *Store {
	return &Store{
		opts:       opts.withDefaults(),
		bus:        b,
		logger:     log.WithComponent("fleet"),
		now:        time.Now,
		applyCh:    make(chan applyReq),
		snapCh:     make(chan snapshotReq),
		sensorCh:   make(chan sensorReq),
		conflictCh: make(chan conflictsReq),
		resolveCh:  make(chan resolveReq),
		layoutCh:   make(chan layoutReq),
		done:       make(chan struct{}),
		trainsets:  make(map[string]*model.Trainset),
		bays:       make(map[string]*model.Bay),
		tracks:     make(map[string]model.Track),
		rings:      make(map[string]*sensorRing),
		clearances: make(map[string]map[model.Department]model.Clearance),
		conflicts:  make(map[string]*model.Conflict),
		pending:    make(map[string]pendingConflict),
		lastWrites: make(map[string]writeStamp),
		seen:       make(map[uint64]time.Time),
	}
}

// Run executes the writer loop until ctx is cancelled.
func (s *Store) Run(ctx context.Context) error {
	s.logger.Info().
		Str(log.FieldEvent, "store.start").
		Str(log.FieldDepot, s.opts.Depot).
		Int("sensor_ring", s.opts.SensorRing).
		Dur("conflict_window", s.opts.ConflictWindow).
		Msg("fleet store writer running")

	janitor := time.NewTicker(janitorInterval)
	defer janitor.Stop()
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str(log.FieldEvent, "store.stop").Msg("fleet store writer stopped")
			return nil
		case req := <-s.applyCh:
			req.reply <- s.handleApply(ctx, req.delta, req.meta)
		case req := <-s.snapCh:
			req.reply <- s.buildSnapshot()
		case req := <-s.sensorCh:
			req.reply <- s.handleSensor(req.frame)
		case req := <-s.conflictCh:
			req.reply <- s.listConflicts(req.includeResolved)
		case req := <-s.resolveCh:
			req.reply <- s.handleResolve(ctx, req)
		case req := <-s.layoutCh:
			req.reply <- s.handleLayout(req.bays, req.tracks)
		case <-janitor.C:
			s.sweep()
		}
	}
}

// Snapshot returns a deep value copy of the current fleet state.
func (s *Store) Snapshot(ctx context.Context) (model.FleetSnapshot, error) {
	req := snapshotReq{reply: make(chan model.FleetSnapshot, 1)}
	select {
	case s.snapCh <- req:
	case <-s.done:
		return model.FleetSnapshot{}, ErrClosed
	case <-ctx.Done():
		return model.FleetSnapshot{}, ctx.Err()
	}
	select {
	case snap := <-req.reply:
		return snap, nil
	case <-ctx.Done():
		return model.FleetSnapshot{}, ctx.Err()
	}
}

// Apply merges a delta into the store under the conflict rules.
func (s *Store) Apply(ctx context.Context, d Delta, meta SourceMeta) (ApplyResult, error) {
	req := applyReq{delta: d, meta: meta, reply: make(chan ApplyResult, 1)}
	select {
	case s.applyCh <- req:
	case <-s.done:
		return ApplyResult{}, ErrClosed
	case <-ctx.Done():
		return ApplyResult{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res, nil
	case <-ctx.Done():
		return ApplyResult{}, ctx.Err()
	}
}

// SensorAppend admits one telemetry frame into the per-trainset ring.
func (s *Store) SensorAppend(ctx context.Context, frame model.SensorFrame) error {
	req := sensorReq{frame: frame, reply: make(chan error, 1)}
	select {
	case s.sensorCh <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Conflicts lists recorded conflicts, newest first.
func (s *Store) Conflicts(ctx context.Context, includeResolved bool) ([]model.Conflict, error) {
	req := conflictsReq{includeResolved: includeResolved, reply: make(chan []model.Conflict, 1)}
	select {
	case s.conflictCh <- req:
	case <-s.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case list := <-req.reply:
		return list, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResolveConflict settles a pending conflict in favour of one candidate
// source and pins the chosen value against later automatic writes.
func (s *Store) ResolveConflict(ctx context.Context, conflictID, sourceID, resolvedBy string) error {
	req := resolveReq{conflictID: conflictID, sourceID: sourceID, resolvedBy: resolvedBy, reply: make(chan error, 1)}
	select {
	case s.resolveCh <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetLayout replaces the depot geometry. Occupancy is rebuilt from the
// trainsets' current bays.
func (s *Store) SetLayout(ctx context.Context, bays []model.Bay, tracks []model.Track) error {
	req := layoutReq{bays: bays, tracks: tracks, reply: make(chan error, 1)}
	select {
	case s.layoutCh <- req:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the writer has exited.
func (s *Store) Done() <-chan struct{} { return s.done }

func (s *Store) handleApply(ctx context.Context, d Delta, meta SourceMeta) ApplyResult {
	now := s.now()
	if errs := s.validate(&d); len(errs) > 0 {
		metrics.RecordApply("rejected")
		s.logger.Warn().
			Str(log.FieldEvent, "store.apply.rejected").
			Str(log.FieldTrainsetID, d.TrainsetID).
			Str(log.FieldSourceID, meta.SourceID).
			Strs("errors", errs).
			Msg("delta rejected")
		return ApplyResult{Status: ApplyRejected, Errors: errs}
	}

	changes := d.changes()
	if key, ok := deltaKey(&d, meta, changes); ok {
		if _, dup := s.seen[key]; dup {
			metrics.RecordApply("applied")
			return ApplyResult{Status: ApplyApplied}
		}
		s.seen[key] = now
	}

	t := s.trainsets[d.TrainsetID]
	if t == nil {
		t = &model.Trainset{ID: d.TrainsetID, Status: model.StatusAvailable}
		s.trainsets[d.TrainsetID] = t
	}

	var conflictID string
	for _, ch := range changes {
		if id := s.applyChange(ctx, t, ch, meta, now); id != "" && conflictID == "" {
			conflictID = id
		}
	}
	t.UpdatedAt = now

	if conflictID != "" {
		metrics.RecordApply("conflicted")
		return ApplyResult{Status: ApplyConflicted, ConflictID: conflictID}
	}
	metrics.RecordApply("applied")
	return ApplyResult{Status: ApplyApplied}
}

func (s *Store) applyChange(ctx context.Context, t *model.Trainset, ch fieldChange, meta SourceMeta, now time.Time) string {
	prev, exists := s.lastWrites[ch.path]
	inWindow := exists && now.Sub(prev.appliedAt) <= s.opts.ConflictWindow
	if inWindow && prev.sourceID != meta.SourceID && prev.value != ch.value {
		return s.recordConflict(ctx, t, ch, prev, meta, now)
	}
	ch.apply(s, t)
	s.lastWrites[ch.path] = writeStamp{
		sourceID:  meta.SourceID,
		value:     ch.value,
		priority:  meta.Priority,
		manual:    meta.Manual,
		at:        meta.Timestamp,
		appliedAt: now,
	}
	return ""
}

func (s *Store) recordConflict(ctx context.Context, t *model.Trainset, ch fieldChange, prev writeStamp, meta SourceMeta, now time.Time) string {
	existing := model.ConflictCandidate{SourceID: prev.sourceID, Value: prev.value, Priority: prev.priority, Timestamp: prev.at}
	incoming := model.ConflictCandidate{SourceID: meta.SourceID, Value: ch.value, Priority: meta.Priority, Timestamp: meta.Timestamp}
	c := &model.Conflict{
		ID:         uuid.NewString(),
		FieldPath:  ch.path,
		Candidates: []model.ConflictCandidate{existing, incoming},
		CreatedAt:  now,
	}

	incomingWins := false
	switch {
	case incoming.Priority != existing.Priority:
		c.Resolution = model.ResolutionAutoPriority
		incomingWins = incoming.Priority > existing.Priority
	case meta.Manual != prev.manual:
		// Override sources outrank same-priority automatic sources.
		c.Resolution = model.ResolutionAutoPriority
		incomingWins = meta.Manual
	case !incoming.Timestamp.Equal(existing.Timestamp):
		c.Resolution = model.ResolutionAutoTimestamp
		incomingWins = incoming.Timestamp.After(existing.Timestamp)
	default:
		c.Resolution = model.ResolutionPending
	}

	switch c.Resolution {
	case model.ResolutionPending:
		// Indistinguishable claims: keep the standing value and park the
		// incoming mutation for a manual verdict.
		s.pending[c.ID] = pendingConflict{
			trainsetID: t.ID,
			appliers: map[string]func(*Store, *model.Trainset){
				meta.SourceID: ch.apply,
			},
		}
	default:
		resolvedAt := now
		c.ResolvedAt = &resolvedAt
		if incomingWins {
			c.ResolvedValue = incoming.Value
			ch.apply(s, t)
			s.lastWrites[ch.path] = writeStamp{
				sourceID:  meta.SourceID,
				value:     ch.value,
				priority:  meta.Priority,
				manual:    meta.Manual,
				at:        meta.Timestamp,
				appliedAt: now,
			}
		} else {
			c.ResolvedValue = existing.Value
		}
	}

	s.conflicts[c.ID] = c
	metrics.RecordConflict(string(c.Resolution))
	metrics.SetOpenConflicts(len(s.pending))
	s.publishConflict(ctx, c)
	s.logger.Warn().
		Str(log.FieldEvent, "store.conflict").
		Str(log.FieldConflictID, c.ID).
		Str("field_path", c.FieldPath).
		Str("resolution", string(c.Resolution)).
		Str("sources", prev.sourceID+"|"+meta.SourceID).
		Msg("sources disagree on field")
	return c.ID
}

func (s *Store) handleResolve(ctx context.Context, req resolveReq) error {
	c := s.conflicts[req.conflictID]
	if c == nil {
		return ErrUnknownConflict
	}
	if c.Resolution != model.ResolutionPending {
		return fmt.Errorf("fleet: conflict %s already resolved (%s): %w", req.conflictID, c.Resolution, ErrUnknownConflict)
	}
	var chosen *model.ConflictCandidate
	for i := range c.Candidates {
		if c.Candidates[i].SourceID == req.sourceID {
			chosen = &c.Candidates[i]
			break
		}
	}
	if chosen == nil {
		return fmt.Errorf("fleet: conflict %s has no candidate from %q: %w", req.conflictID, req.sourceID, ErrUnknownConflict)
	}

	now := s.now()
	p := s.pending[req.conflictID]
	if fn := p.appliers[req.sourceID]; fn != nil {
		if t := s.trainsets[p.trainsetID]; t != nil {
			fn(s, t)
			t.UpdatedAt = now
		}
	}
	// Pin the verdict so a straggling automatic write inside the window
	// cannot override it.
	s.lastWrites[c.FieldPath] = writeStamp{
		sourceID:  req.resolvedBy,
		value:     chosen.Value,
		priority:  math.MaxInt32,
		manual:    true,
		at:        now,
		appliedAt: now,
	}
	c.Resolution = model.ResolutionManual
	c.ResolvedValue = chosen.Value
	c.ResolvedAt = &now
	delete(s.pending, req.conflictID)
	metrics.RecordConflict(string(model.ResolutionManual))
	metrics.SetOpenConflicts(len(s.pending))
	s.publishConflict(ctx, c)
	s.logger.Info().
		Str(log.FieldEvent, "store.conflict.resolved").
		Str(log.FieldConflictID, c.ID).
		Str("resolved_by", req.resolvedBy).
		Str("winning_source", req.sourceID).
		Msg("conflict resolved manually")
	return nil
}

func (s *Store) handleSensor(f model.SensorFrame) error {
	if f.TrainsetID == "" {
		return &ValidationError{Field: "trainsetId", Reason: "required"}
	}
	if f.Timestamp <= 0 {
		return &ValidationError{Field: "timestamp", Reason: "must be a positive unix second"}
	}
	if len(f.AnomalyTags) == 0 {
		f.AnomalyTags = f.Anomalies()
	}
	r := s.rings[f.TrainsetID]
	if r == nil {
		r = newSensorRing(s.opts.SensorRing)
		s.rings[f.TrainsetID] = r
	}
	r.append(f)
	metrics.IncSensorFrame()
	return nil
}

func (s *Store) handleLayout(bays []model.Bay, tracks []model.Track) error {
	seen := make(map[string]bool, len(bays))
	trackIDs := make(map[string]bool, len(tracks))
	for _, tr := range tracks {
		if tr.ID == "" {
			return &ValidationError{Field: "track.id", Reason: "required"}
		}
		if trackIDs[tr.ID] {
			return &ValidationError{Field: "track.id", Reason: fmt.Sprintf("duplicate track %q", tr.ID)}
		}
		trackIDs[tr.ID] = true
	}
	for _, b := range bays {
		if b.ID == "" {
			return &ValidationError{Field: "bay.id", Reason: "required"}
		}
		if seen[b.ID] {
			return &ValidationError{Field: "bay.id", Reason: fmt.Sprintf("duplicate bay %q", b.ID)}
		}
		if b.Position < 1 {
			return &ValidationError{Field: "bay.position", Reason: "must be >= 1"}
		}
		if !trackIDs[b.TrackID] {
			return &ValidationError{Field: "bay.trackId", Reason: fmt.Sprintf("unknown track %q", b.TrackID)}
		}
		seen[b.ID] = true
	}

	s.bays = make(map[string]*model.Bay, len(bays))
	s.bayOrder = s.bayOrder[:0]
	for _, b := range bays {
		bay := b
		bay.Occupant = ""
		s.bays[bay.ID] = &bay
		s.bayOrder = append(s.bayOrder, bay.ID)
	}
	s.tracks = make(map[string]model.Track, len(tracks))
	s.trackOrder = s.trackOrder[:0]
	for _, tr := range tracks {
		s.tracks[tr.ID] = tr
		s.trackOrder = append(s.trackOrder, tr.ID)
	}
	// Occupancy follows the trainsets; unknown bays are cleared.
	ids := make([]string, 0, len(s.trainsets))
	for id := range s.trainsets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := s.trainsets[id]
		if t.CurrentBay == "" {
			continue
		}
		b := s.bays[t.CurrentBay]
		if b == nil || b.Occupant != "" {
			t.CurrentBay = ""
			continue
		}
		b.Occupant = t.ID
	}
	s.logger.Info().
		Str(log.FieldEvent, "store.layout").
		Int("bays", len(bays)).
		Int("tracks", len(tracks)).
		Msg("depot layout set")
	return nil
}

func (s *Store) buildSnapshot() model.FleetSnapshot {
	now := s.now()
	snap := model.FleetSnapshot{TakenAt: now, Depot: s.opts.Depot}

	ids := make([]string, 0, len(s.trainsets))
	for id := range s.trainsets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snap.Trainsets = make([]model.Trainset, 0, len(ids))
	for _, id := range ids {
		t := s.trainsets[id].Clone()
		if deptMap := s.clearances[id]; len(deptMap) > 0 {
			t.Cleared = clearedAt(deptMap, now)
		}
		snap.Trainsets = append(snap.Trainsets, t)
	}

	snap.Bays = make([]model.Bay, 0, len(s.bayOrder))
	for _, id := range s.bayOrder {
		snap.Bays = append(snap.Bays, *s.bays[id])
	}
	snap.Tracks = make([]model.Track, 0, len(s.trackOrder))
	for _, id := range s.trackOrder {
		snap.Tracks = append(snap.Tracks, s.tracks[id])
	}

	for id, r := range s.rings {
		if r.n == 0 {
			continue
		}
		if snap.Sensors == nil {
			snap.Sensors = make(map[string]model.SensorAggregate, len(s.rings))
		}
		snap.Sensors[id] = r.aggregate(id)
	}

	cids := make([]string, 0, len(s.clearances))
	for id := range s.clearances {
		cids = append(cids, id)
	}
	sort.Strings(cids)
	for _, id := range cids {
		for _, dept := range model.Departments {
			if c, ok := s.clearances[id][dept]; ok {
				snap.Clearances = append(snap.Clearances, c)
			}
		}
	}
	return snap
}

func (s *Store) listConflicts(includeResolved bool) []model.Conflict {
	out := make([]model.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		if !includeResolved && c.Resolution != model.ResolutionPending {
			continue
		}
		cc := *c
		cc.Candidates = append([]model.ConflictCandidate(nil), c.Candidates...)
		if c.ResolvedAt != nil {
			at := *c.ResolvedAt
			cc.ResolvedAt = &at
		}
		out = append(out, cc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// moveOccupant reassigns a trainset to a bay, releasing the previous one.
// Validation has already confirmed the target is free.
func (s *Store) moveOccupant(t *model.Trainset, bayID string) {
	if t.CurrentBay != "" {
		if old := s.bays[t.CurrentBay]; old != nil && old.Occupant == t.ID {
			old.Occupant = ""
		}
	}
	t.CurrentBay = bayID
	if bayID != "" {
		if b := s.bays[bayID]; b != nil {
			b.Occupant = t.ID
		}
	}
}

func (s *Store) checkBayFree(bayID, trainsetID string) error {
	if len(s.bays) > 0 {
		b := s.bays[bayID]
		if b == nil {
			return &ValidationError{Field: "currentBay", Reason: fmt.Sprintf("unknown bay %q", bayID)}
		}
		if b.Occupant != "" && b.Occupant != trainsetID {
			return &ValidationError{Field: "currentBay", Reason: fmt.Sprintf("bay %s occupied by %s", bayID, b.Occupant)}
		}
		return nil
	}
	// No layout registered yet: fall back to scanning claimed bays.
	for id, other := range s.trainsets {
		if id != trainsetID && other.CurrentBay == bayID {
			return &ValidationError{Field: "currentBay", Reason: fmt.Sprintf("bay %s occupied by %s", bayID, id)}
		}
	}
	return nil
}

func (s *Store) setClearance(t *model.Trainset, c model.Clearance) {
	m := s.clearances[t.ID]
	if m == nil {
		m = make(map[model.Department]model.Clearance, len(model.Departments))
		s.clearances[t.ID] = m
	}
	m[c.Department] = c
	t.Cleared = clearedAt(m, s.now())
}

// clearedAt reports whether every department holds a CLEARED window covering t.
func clearedAt(m map[model.Department]model.Clearance, t time.Time) bool {
	for _, dept := range model.Departments {
		c, ok := m[dept]
		if !ok || !c.Covers(t) {
			return false
		}
	}
	return true
}

func (s *Store) publishConflict(ctx context.Context, c *model.Conflict) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, model.TopicConflict, model.ConflictEvent{
		ConflictID: c.ID,
		FieldPath:  c.FieldPath,
		Resolution: string(c.Resolution),
		At:         c.CreatedAt,
	})
}

// sweep prunes resolved conflicts past retention, stale idempotency keys and
// write stamps outside the conflict window.
func (s *Store) sweep() {
	now := s.now()
	for id, c := range s.conflicts {
		if c.ResolvedAt != nil && now.Sub(*c.ResolvedAt) > conflictRetention {
			delete(s.conflicts, id)
		}
	}
	for key, at := range s.seen {
		if now.Sub(at) > idempotencyRetention {
			delete(s.seen, key)
		}
	}
	for path, stamp := range s.lastWrites {
		if now.Sub(stamp.appliedAt) > s.opts.ConflictWindow {
			delete(s.lastWrites, path)
		}
	}
	metrics.SetOpenConflicts(len(s.pending))
}

// deltaKey hashes (source, timestamp, canonical field values) so replayed
// records are absorbed without re-running conflict detection.
func deltaKey(d *Delta, meta SourceMeta, changes []fieldChange) (uint64, bool) {
	fields := make([]string, 0, len(changes))
	for _, ch := range changes {
		fields = append(fields, ch.path+"="+ch.value)
	}
	key, err := hashstructure.Hash(struct {
		Source string
		At     string
		ID     string
		Fields []string
	}{meta.SourceID, meta.Timestamp.UTC().Format(time.RFC3339Nano), d.TrainsetID, fields}, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, false
	}
	return key, true
}
