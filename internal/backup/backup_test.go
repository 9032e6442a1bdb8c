package backup_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/listenupapp/webmention-receiver/internal/backup"
)

// testSetup creates a small source database and a backup service.
func testSetup(t *testing.T) (*sql.DB, *backup.Service, string) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "source.sqlite3")
	backupDir := filepath.Join(tmpDir, "backups")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE webmentions (id TEXT PRIMARY KEY, domain TEXT, source TEXT, target TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO webmentions VALUES ('a', 'example.com', 'https://s.example/1', 'https://example.com/')`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `PRAGMA user_version = 1`)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return db, backup.NewService(backupDir, logger), tmpDir
}

func TestSnapshot_WritesCopy(t *testing.T) {
	db, svc, _ := testSetup(t)
	ctx := context.Background()

	info, err := svc.Snapshot(ctx, db, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, info.FromVersion)
	assert.Greater(t, info.Size, int64(0))
	assert.True(t, strings.HasPrefix(filepath.Base(info.Path), backup.FilePrefix))
	assert.True(t, strings.HasSuffix(info.Path, ".1"+backup.FileSuffix))

	snap, err := sql.Open("sqlite", info.Path)
	require.NoError(t, err)
	defer snap.Close()

	var count int
	require.NoError(t, snap.QueryRow(`SELECT COUNT(*) FROM webmentions`).Scan(&count))
	assert.Equal(t, 1, count)

	var version int
	require.NoError(t, snap.QueryRow(`PRAGMA user_version`).Scan(&version))
	assert.Equal(t, 1, version)
}

func TestSnapshot_UniqueNames(t *testing.T) {
	db, svc, _ := testSetup(t)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, db, 1)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx, db, 1)
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	assert.FileExists(t, first.Path)
	assert.FileExists(t, second.Path)
}

func TestList_NewestFirst(t *testing.T) {
	db, svc, _ := testSetup(t)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx, db, 0)
	require.NoError(t, err)
	second, err := svc.Snapshot(ctx, db, 1)
	require.NoError(t, err)

	// Unrelated files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(svc.Dir(), "notes.txt"), []byte("x"), 0o644))

	backups, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, second.ID, backups[0].ID)
	assert.Equal(t, first.ID, backups[1].ID)
}

func TestList_MissingDir(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc := backup.NewService(filepath.Join(t.TempDir(), "nope"), logger)

	backups, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestGet_NotFound(t *testing.T) {
	_, svc, _ := testSetup(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "1700000000-000000000-abcdef.1")
	assert.ErrorIs(t, err, backup.ErrBackupNotFound)

	_, err = svc.Get(ctx, "../../etc/passwd")
	assert.ErrorIs(t, err, backup.ErrBackupNotFound)
}

func TestRestore(t *testing.T) {
	db, svc, tmpDir := testSetup(t)
	ctx := context.Background()

	info, err := svc.Snapshot(ctx, db, 1)
	require.NoError(t, err)

	dest := filepath.Join(tmpDir, "restored.sqlite3")
	require.NoError(t, os.WriteFile(dest+"-wal", []byte("stale"), 0o644))

	result, err := svc.Restore(ctx, info.ID, dest, backup.RestoreOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SchemaVersion)
	assert.Equal(t, int64(1), result.Mentions)
	assert.FileExists(t, dest)
	assert.NoFileExists(t, dest+"-wal")

	// A second restore over the now-existing file needs force.
	_, err = svc.Restore(ctx, info.ID, dest, backup.RestoreOptions{})
	assert.ErrorIs(t, err, backup.ErrDatabaseExists)

	_, err = svc.Restore(ctx, info.ID, dest, backup.RestoreOptions{Force: true})
	require.NoError(t, err)
}

func TestRestore_DryRun(t *testing.T) {
	db, svc, tmpDir := testSetup(t)
	ctx := context.Background()

	info, err := svc.Snapshot(ctx, db, 1)
	require.NoError(t, err)

	dest := filepath.Join(tmpDir, "dry.sqlite3")
	result, err := svc.Restore(ctx, info.ID, dest, backup.RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.NoFileExists(t, dest)
}

func TestRestore_CorruptedSnapshot(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, path string)
	}{
		{"garbage", func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a database ", 64)), 0o600))
		}},
		{"truncated", func(t *testing.T, path string) {
			require.NoError(t, os.Truncate(path, 10))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, svc, tmpDir := testSetup(t)
			ctx := context.Background()

			info, err := svc.Snapshot(ctx, db, 1)
			require.NoError(t, err)
			tt.corrupt(t, info.Path)

			dest := filepath.Join(tmpDir, "restored.sqlite3")
			_, err = svc.Restore(ctx, info.ID, dest, backup.RestoreOptions{Force: true})
			assert.ErrorIs(t, err, backup.ErrCorruptedBackup)
			assert.NoFileExists(t, dest)
		})
	}
}
