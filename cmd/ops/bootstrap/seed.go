package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tripwise/internal/types"
)

// initDataRoot creates the catalog layout the API expects:
//
//	<root>/countries/          one JSON document per country
//	<root>/users.json          confirmed accounts, starts empty
//	<root>/pending_signups.json unconfirmed signups, starts empty
//
// Existing catalog files are preserved unless force is set, so re-running
// init against a live data root is safe.
func initDataRoot(root string, force bool, logger *slog.Logger) error {
	if root == "" {
		return fmt.Errorf("data root path is empty")
	}

	if err := os.MkdirAll(filepath.Join(root, types.ResourceCountriesDir), 0o755); err != nil {
		return fmt.Errorf("creating countries directory: %w", err)
	}

	empty, err := json.Marshal([]struct{}{})
	if err != nil {
		return fmt.Errorf("encoding empty collection: %w", err)
	}

	for _, name := range []string{types.ResourceUsers, types.ResourcePendingSignups} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil && !force {
			logger.Info("catalog file already exists, keeping it", "file", name)
			continue
		}
		if err := writeFileAtomic(path, empty); err != nil {
			return fmt.Errorf("seeding %s: %w", name, err)
		}
		logger.Info("seeded catalog file", "file", name)
	}

	return nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated catalog file behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bootstrap-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
