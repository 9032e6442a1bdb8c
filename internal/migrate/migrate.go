// Package migrate brings the receiver database up to the current schema.
//
// The schema version lives in SQLite's PRAGMA user_version. Scripts are
// embedded and applied in file-name order; script N moves the database from
// version N to N+1. A snapshot of the database is taken before every step.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/listenupapp/webmention-receiver/internal/backup"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

var (
	// ErrUnknownSchemaVersion means the database was written by a newer build.
	ErrUnknownSchemaVersion = errors.New("unknown schema version")

	// ErrMigrationFailed wraps any failure while backing up or applying a step.
	ErrMigrationFailed = errors.New("migration failed")
)

// Script is one embedded migration step.
type Script struct {
	Version int
	Name    string
	SQL     string
}

// Snapshotter takes a backup of the database reachable through db.
type Snapshotter interface {
	Snapshot(ctx context.Context, db backup.Execer, fromVersion int) (*backup.Info, error)
}

// Result describes a completed run.
type Result struct {
	From    int           `json:"from"`
	To      int           `json:"to"`
	Backups []backup.Info `json:"backups"`
}

// Applied reports how many steps the run applied.
func (r *Result) Applied() int {
	return r.To - r.From
}

// Migrator applies pending scripts on a single pinned connection.
type Migrator struct {
	db      *sql.DB
	backups Snapshotter
	scripts []Script
	applied prometheus.Counter
	logger  *slog.Logger
}

// New creates a Migrator using the embedded scripts. applied may be nil.
func New(db *sql.DB, backups Snapshotter, applied prometheus.Counter, logger *slog.Logger) (*Migrator, error) {
	scripts, err := Scripts()
	if err != nil {
		return nil, err
	}

	return &Migrator{
		db:      db,
		backups: backups,
		scripts: scripts,
		applied: applied,
		logger:  logger,
	}, nil
}

// Scripts returns the embedded migration scripts in order.
func Scripts() ([]Script, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	scripts := make([]Script, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			return nil, fmt.Errorf("migration %s: missing version prefix", name)
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s: %w", name, err)
		}

		body, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		scripts = append(scripts, Script{
			Version: version,
			Name:    strings.TrimSuffix(name, ".sql"),
			SQL:     string(body),
		})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version < scripts[j].Version })

	for i, s := range scripts {
		if s.Version != i {
			return nil, fmt.Errorf("migration %s: expected version %d", s.Name, i)
		}
	}

	return scripts, nil
}

// Latest returns the schema version reached after every script is applied.
func (m *Migrator) Latest() int {
	return len(m.scripts)
}

// Version reads the current schema version.
func (m *Migrator) Version(ctx context.Context) (int, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	return userVersion(ctx, conn)
}

// Run applies every pending script. A database newer than this build is
// rejected without modification.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire connection: %v", ErrMigrationFailed, err)
	}
	defer conn.Close()

	version, err := userVersion(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	if version > len(m.scripts) {
		return nil, fmt.Errorf("%w: database is at %d, this build knows %d",
			ErrUnknownSchemaVersion, version, len(m.scripts))
	}

	result := &Result{From: version, To: version, Backups: []backup.Info{}}

	for version < len(m.scripts) {
		script := m.scripts[version]

		m.logger.Info("backing up before migration", "version", version)
		info, err := m.backups.Snapshot(ctx, conn, version)
		if err != nil {
			return result, fmt.Errorf("%w: backup before %s: %v", ErrMigrationFailed, script.Name, err)
		}
		result.Backups = append(result.Backups, *info)

		m.logger.Info("running migration", "version", version, "name", script.Name)
		if err := apply(ctx, conn, script); err != nil {
			return result, fmt.Errorf("%w: %s: %v", ErrMigrationFailed, script.Name, err)
		}

		if m.applied != nil {
			m.applied.Inc()
		}

		next, err := userVersion(ctx, conn)
		if err != nil {
			return result, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
		}
		if next != version+1 {
			return result, fmt.Errorf("%w: %s left version at %d", ErrMigrationFailed, script.Name, next)
		}
		version = next
		result.To = version
	}

	if result.Applied() > 0 {
		m.logger.Info("schema up to date", "from", result.From, "to", result.To)
	} else {
		m.logger.Debug("schema up to date", "version", version)
	}

	return result, nil
}

// apply runs the script and bumps user_version in one transaction.
func apply(ctx context.Context, conn *sql.Conn, script Script) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, script.SQL); err != nil {
		return err
	}

	// PRAGMA does not accept bound parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", script.Version+1)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return tx.Commit()
}

func userVersion(ctx context.Context, conn *sql.Conn) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return v, nil
}
