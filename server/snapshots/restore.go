package snapshots

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nrednav/cuid2"
)

// RestoreLatestSnapshot downloads the newest database snapshot if the local
// sqlite file does not exist yet and restoring is enabled.
func RestoreLatestSnapshot(ctx context.Context, sqlitePath string, config Config) error {
	if !HasConfig(config) || !config.EnableRestore || sqlitePath == ":memory:" {
		return nil
	}
	if _, err := os.Stat(sqlitePath); !os.IsNotExist(err) {
		return nil
	}
	store, err := newBucket(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create S3 client: %w", err)
	}
	return restoreSQLite(ctx, store, sqlitePath, config.Logger)
}

func restoreSQLite(ctx context.Context, store objectStore, localPath string, logger *slog.Logger) error {
	logger.Info("SQLite empty. Looking for SQLite snapshots in S3")
	latest, err := latestKey(ctx, store, SNAPSHOT_SQLITE_FILE_PREFIX)
	if err != nil {
		return fmt.Errorf("failed to find latest SQLite snapshot: %w", err)
	}
	if latest == "" {
		logger.Info("No SQLite snapshots found")
		return nil
	}
	startTime := time.Now()
	logger.Info("Downloading SQLite snapshot", slog.String("snapshot", latest))

	data, err := store.Get(ctx, latest)
	if err != nil {
		return fmt.Errorf("failed to download SQLite snapshot: %w", err)
	}
	// Write next to the target so the rename stays on one filesystem.
	tempFile := filepath.Join(filepath.Dir(localPath), fmt.Sprintf(".vizboard-sqlite-restore-%s.db", cuid2.Generate()))
	defer os.Remove(tempFile)
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write SQLite snapshot to temp file: %w", err)
	}
	if err := os.Rename(tempFile, localPath); err != nil {
		return fmt.Errorf("failed to move SQLite snapshot to final location: %w", err)
	}
	logger.Info("SQLite snapshot restored successfully", slog.String("snapshot", latest), slog.Duration("duration", time.Since(startTime)))
	return nil
}
