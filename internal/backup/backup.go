// Package backup takes and manages point-in-time snapshots of the receiver
// database. Snapshots are written before every schema migration and are never
// overwritten, so an operator can always go back to the last known-good file.
package backup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/listenupapp/webmention-receiver/internal/id"
)

const (
	// FilePrefix starts every snapshot file name.
	FilePrefix = "webmention-receiver.migrationbackup."
	// FileSuffix ends every snapshot file name.
	FileSuffix = ".sqlite3"

	suffixLen = 6
)

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Service creates and lists snapshots in a single directory.
type Service struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service writing into dir.
func NewService(dir string, logger *slog.Logger) *Service {
	return &Service{
		dir:    dir,
		logger: logger,
		now:    time.Now,
	}
}

// Dir returns the snapshot directory.
func (s *Service) Dir() string {
	return s.dir
}

// Snapshot copies the full contents of the database behind db into a new
// snapshot file recording fromVersion. It must not run inside a transaction.
func (s *Service) Snapshot(ctx context.Context, db Execer, fromVersion int) (*Info, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	suffix, err := id.Suffix(suffixLen)
	if err != nil {
		return nil, err
	}

	createdAt := s.now().UTC()
	backupID := formatID(createdAt, suffix, fromVersion)
	path := s.path(backupID)

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrBackupExists, path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	s.logger.Info("creating backup", "path", path, "from_version", fromVersion)

	// VACUUM INTO refuses to write over a non-empty file.
	if _, err := db.ExecContext(ctx, `VACUUM INTO ?`, path); err != nil {
		return nil, fmt.Errorf("vacuum into %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat backup: %w", err)
	}

	s.logger.Info("backup complete", "path", path, "size", info.Size())

	return &Info{
		ID:          backupID,
		Path:        path,
		FromVersion: fromVersion,
		CreatedAt:   createdAt,
		Size:        info.Size(),
	}, nil
}

// List returns all snapshots in the directory, newest first.
func (s *Service) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var backups []Info
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, FilePrefix) || !strings.HasSuffix(name, FileSuffix) {
			continue
		}

		backupID := strings.TrimSuffix(strings.TrimPrefix(name, FilePrefix), FileSuffix)
		createdAt, version, err := parseID(backupID)
		if err != nil {
			s.logger.Warn("skipping unrecognised backup file", "name", name, "error", err)
			continue
		}

		fi, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, Info{
			ID:          backupID,
			Path:        filepath.Join(s.dir, name),
			FromVersion: version,
			CreatedAt:   createdAt,
			Size:        fi.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})

	return backups, nil
}

// Get returns a snapshot by ID.
func (s *Service) Get(_ context.Context, backupID string) (*Info, error) {
	createdAt, version, err := parseID(backupID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackupNotFound, err)
	}

	path := s.path(backupID)
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBackupNotFound
		}
		return nil, err
	}

	return &Info{
		ID:          backupID,
		Path:        path,
		FromVersion: version,
		CreatedAt:   createdAt,
		Size:        fi.Size(),
	}, nil
}

func (s *Service) path(backupID string) string {
	return filepath.Join(s.dir, FilePrefix+backupID+FileSuffix)
}

// formatID builds "<unix seconds>-<nanoseconds>-<suffix>.<version>". Seconds
// and zero-padded nanoseconds keep lexical and chronological order aligned.
func formatID(t time.Time, suffix string, version int) string {
	return fmt.Sprintf("%d-%09d-%s.%d", t.Unix(), t.Nanosecond(), suffix, version)
}

func parseID(backupID string) (time.Time, int, error) {
	stamp, versionStr, ok := strings.Cut(backupID, ".")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("backup id %q: missing version", backupID)
	}
	version, err := strconv.Atoi(versionStr)
	if err != nil || version < 0 {
		return time.Time{}, 0, fmt.Errorf("backup id %q: invalid version", backupID)
	}

	parts := strings.Split(stamp, "-")
	if len(parts) != 3 || parts[2] == "" {
		return time.Time{}, 0, fmt.Errorf("backup id %q: invalid timestamp", backupID)
	}
	sec, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("backup id %q: invalid seconds", backupID)
	}
	nsec, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || len(parts[1]) != 9 {
		return time.Time{}, 0, fmt.Errorf("backup id %q: invalid nanoseconds", backupID)
	}

	return time.Unix(sec, nsec).UTC(), version, nil
}
