package backup

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver for snapshot verification
)

// Restore replaces the database at dest with the snapshot identified by
// backupID. The server must not be running against dest while this happens.
func (s *Service) Restore(ctx context.Context, backupID, dest string, opts RestoreOptions) (*RestoreResult, error) {
	info, err := s.Get(ctx, backupID)
	if err != nil {
		return nil, err
	}

	version, mentions, err := verify(ctx, info.Path)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{
		Backup:        *info,
		Destination:   dest,
		SchemaVersion: version,
		Mentions:      mentions,
		DryRun:        opts.DryRun,
	}

	if _, err := os.Stat(dest); err == nil && !opts.Force {
		return nil, fmt.Errorf("%w: %s", ErrDatabaseExists, dest)
	}

	if opts.DryRun {
		s.logger.Info("restore dry run", "backup", backupID, "destination", dest)
		return result, nil
	}

	s.logger.Info("restoring backup",
		"backup", backupID,
		"destination", dest,
		"schema_version", version,
		"mentions", mentions,
	)

	if err := copyAtomic(info.Path, dest); err != nil {
		return nil, fmt.Errorf("restore %s: %w", backupID, err)
	}

	// Stale WAL frames would be replayed over the restored file.
	for _, sidecar := range []string{dest + "-wal", dest + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove %s: %w", sidecar, err)
		}
	}

	s.logger.Info("restore complete", "backup", backupID)
	return result, nil
}

// verify opens a snapshot read-only and checks it is a sound receiver database.
func verify(ctx context.Context, path string) (int, int64, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	defer db.Close()

	var check string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&check); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}
	if check != "ok" {
		return 0, 0, fmt.Errorf("%w: %s", ErrCorruptedBackup, check)
	}

	var version int
	if err := db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&version); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
	}

	var mentions int64
	if version > 0 {
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webmentions`).Scan(&mentions); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrCorruptedBackup, err)
		}
	}

	return version, mentions, nil
}

func copyAtomic(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".restore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}

	return os.Rename(tmpPath, dest)
}
