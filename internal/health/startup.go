// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/inductd/internal/config"
	"github.com/ManuGH/inductd/internal/log"
)

// PerformStartupChecks probes the filesystem surfaces the daemon is
// about to write through, before stores open or the listener binds.
// Failing fast here beats a half-started daemon that dies on its first
// cycle commit.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup")

	if cfg.Store.Backend == "badger" {
		if err := ensureWritableDir(cfg.Store.Path); err != nil {
			return fmt.Errorf("plan store path: %w", err)
		}
	}
	if cfg.Feedback.Path != "" {
		if err := ensureWritableDir(filepath.Dir(cfg.Feedback.Path)); err != nil {
			return fmt.Errorf("feedback path: %w", err)
		}
	}
	if cfg.Export.Path != "" {
		if err := ensureWritableDir(filepath.Dir(cfg.Export.Path)); err != nil {
			return fmt.Errorf("export path: %w", err)
		}
	}

	logger.Info().
		Str("store", cfg.Store.Backend).
		Bool("feedback", cfg.Feedback.Path != "").
		Bool("export", cfg.Export.Path != "").
		Msg("startup.checks_passed")
	return nil
}

// ensureWritableDir creates the directory when missing and proves
// writability with a probe file.
func ensureWritableDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	probe := filepath.Join(path, ".write_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("%s is not writable: %w", path, err)
	}
	return os.Remove(probe)
}
