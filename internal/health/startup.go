// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/connectbridge/internal/config"
	"github.com/ManuGH/connectbridge/internal/log"
	"github.com/ManuGH/connectbridge/internal/tokenstore"
)

// PerformStartupChecks verifies the environment before the bridge starts.
// Today that is the token cache location for on-disk backends.
func PerformStartupChecks(cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if cfg.Tokens.Save {
		switch cfg.Tokens.Backend {
		case tokenstore.BackendFile, tokenstore.BackendSQLite:
			if err := checkWritableDir(filepath.Dir(cfg.Tokens.Path)); err != nil {
				return fmt.Errorf("token store: %w", err)
			}
		case tokenstore.BackendBadger:
			if err := checkWritableDir(cfg.Tokens.Path); err != nil {
				return fmt.Errorf("token store: %w", err)
			}
		}
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}

// checkWritableDir creates dir when missing and proves it is writable.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", dir)
	}
	f, err := os.CreateTemp(dir, ".write_test")
	if err != nil {
		return fmt.Errorf("directory is not writable: %s: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return nil
}
