// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package feedback keeps the append-only record of what supervisors
// actually did with solver output. Nothing in here feeds back into live
// solver weights; the log exists for offline calibration.
package feedback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go driver

	"github.com/ManuGH/inductd/internal/model"
)

const busyTimeout = 5 * time.Second

// Record is one observed divergence (or confirmation) between the plan
// and what the depot actually did.
type Record struct {
	ID          int64               `json:"id"`
	PlanID      string              `json:"planId"`
	TrainsetID  string              `json:"trainsetId"`
	AILabel     model.DecisionLabel `json:"aiLabel"`
	ActualLabel model.DecisionLabel `json:"actualLabel"`
	Supervisor  string              `json:"supervisor,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Outcome     map[string]float64  `json:"outcome,omitempty"`
	RecordedAt  time.Time           `json:"recordedAt"`
}

// Log is the SQLite-backed feedback log. A nil *Log is a disabled log:
// appends vanish and reads come back empty.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) the feedback database. WAL and busy_timeout are
// set in the DSN so they apply to every pooled connection.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("feedback: path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("feedback: create directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, busyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("feedback: open failed: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL readers do not block it
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("feedback: ping failed: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS feedback (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	plan_id      TEXT NOT NULL,
	trainset_id  TEXT NOT NULL,
	ai_label     TEXT NOT NULL,
	actual_label TEXT NOT NULL,
	supervisor   TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL DEFAULT '{}',
	recorded_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_plan ON feedback(plan_id);`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("feedback: migrate failed: %w", err)
	}
	return nil
}

func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}

// Append writes one record. Records are never updated or deleted.
func (l *Log) Append(ctx context.Context, rec Record) error {
	if l == nil {
		return nil
	}
	if rec.PlanID == "" || rec.TrainsetID == "" {
		return errors.New("feedback: plan id and trainset id are required")
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	outcome, err := json.Marshal(rec.Outcome)
	if err != nil {
		return fmt.Errorf("feedback: marshal outcome: %w", err)
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO feedback (plan_id, trainset_id, ai_label, actual_label, supervisor, reason, outcome, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.PlanID, rec.TrainsetID, string(rec.AILabel), string(rec.ActualLabel),
		rec.Supervisor, rec.Reason, string(outcome), rec.RecordedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("feedback: insert failed: %w", err)
	}
	return nil
}

// ListByPlan returns all records for a plan in append order.
func (l *Log) ListByPlan(ctx context.Context, planID string) ([]Record, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, plan_id, trainset_id, ai_label, actual_label, supervisor, reason, outcome, recorded_at
		 FROM feedback WHERE plan_id = ? ORDER BY id ASC`, planID)
	if err != nil {
		return nil, fmt.Errorf("feedback: query failed: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec        Record
			ai, actual string
			outcome    string
			recordedAt string
		)
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.TrainsetID, &ai, &actual,
			&rec.Supervisor, &rec.Reason, &outcome, &recordedAt); err != nil {
			return nil, fmt.Errorf("feedback: scan failed: %w", err)
		}
		rec.AILabel = model.DecisionLabel(ai)
		rec.ActualLabel = model.DecisionLabel(actual)
		if outcome != "" && outcome != "{}" {
			if err := json.Unmarshal([]byte(outcome), &rec.Outcome); err != nil {
				return nil, fmt.Errorf("feedback: unmarshal outcome: %w", err)
			}
		}
		at, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("feedback: parse recorded_at: %w", err)
		}
		rec.RecordedAt = at
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Integrity runs PRAGMA quick_check against the open database. Success is
// exactly one row reading "ok"; anything else is reported verbatim.
func (l *Log) Integrity(ctx context.Context) error {
	if l == nil {
		return nil
	}
	rows, err := l.db.QueryContext(ctx, "PRAGMA quick_check;")
	if err != nil {
		return fmt.Errorf("feedback: integrity pragma failed: %w", err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var res string
		if err := rows.Scan(&res); err != nil {
			return fmt.Errorf("feedback: scan integrity row: %w", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(results) == 1 && strings.EqualFold(results[0], "ok") {
		return nil
	}
	if len(results) == 0 {
		return errors.New("feedback: integrity check returned no rows")
	}
	return fmt.Errorf("feedback: integrity check failed: %s", strings.Join(results, "; "))
}
