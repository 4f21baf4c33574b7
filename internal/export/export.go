// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package export mirrors the current induction plan to a JSON file for
// consumers that poll the filesystem instead of the API.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"

	"github.com/ManuGH/inductd/internal/log"
	"github.com/ManuGH/inductd/internal/model"
)

// Writer replaces the export file atomically on every publish. An empty
// path disables the writer.
type Writer struct {
	path   string
	logger zerolog.Logger
}

func New(path string) *Writer {
	return &Writer{
		path:   path,
		logger: log.WithComponent("export"),
	}
}

// Write atomically replaces the export file with the plan JSON. The file
// is fsynced before the rename, so readers never observe a torn plan.
func (w *Writer) Write(plan *model.InductionPlan) error {
	if w.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return fmt.Errorf("create export directory: %w", err)
	}

	pending, err := renameio.NewPendingFile(w.path)
	if err != nil {
		return fmt.Errorf("create pending plan file: %w", err)
	}
	defer func() {
		// renameio removes the temp file when it was not committed
		if err := pending.Cleanup(); err != nil {
			w.logger.Debug().Err(err).Msg("export.cleanup_pending")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write plan: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace plan file: %w", err)
	}

	w.logger.Info().
		Str(log.FieldPlanID, plan.ID).
		Str(log.FieldDepot, plan.Depot).
		Str("path", w.path).
		Msg("export.plan_written")
	return nil
}
