package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/webmention-receiver/internal/backup"
)

var envKeys = []string{
	"ENV", "LOG_LEVEL", "WEBMENTION_CONFIG", "WEBMENTION_EXTERNAL_URL", "WEBMENTION_BIND",
	"WEBMENTION_ALLOWED_DOMAINS", "WEBMENTION_DB_PATH", "WEBMENTION_BACKUP_DIR",
}

// isolate runs the test in an empty directory with no receiver env set and
// returns the global flags every command needs.
func isolate(t *testing.T) (string, []string) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Chdir(dir)

	return dir, []string{
		"--external-url", "https://mentions.example",
		"--database", filepath.Join(dir, "mentions.sqlite3"),
		"--backup-dir", filepath.Join(dir, "backups"),
		"--log-level", "error",
		"--json",
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	parser, _, _ := buildParser("test", &out)
	_, err := parser.ParseArgs(args)
	return out.String(), err
}

func TestVersionFlag(t *testing.T) {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	err := RunWithArgs("0.1.0-test", []string{"--version"})

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)

	assert.NoError(t, err)
	assert.Equal(t, "webmention-receiver 0.1.0-test", strings.TrimSpace(buf.String()))
}

func TestUnknownCommand(t *testing.T) {
	_, err := run(t, "frobnicate")
	assert.Error(t, err)
}

func TestRestoreRequiresBackupID(t *testing.T) {
	_, globals := isolate(t)

	_, err := run(t, append(globals, "restore")...)
	assert.Error(t, err)
}

func TestMigrate_MissingExternalURL(t *testing.T) {
	dir, _ := isolate(t)

	_, err := run(t, "--database", filepath.Join(dir, "x.sqlite3"), "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external")
}

func TestMigrateBackupsRestore(t *testing.T) {
	dir, globals := isolate(t)

	out, err := run(t, append(globals, "migrate")...)
	require.NoError(t, err)

	var migrated migrateJSON
	require.NoError(t, json.Unmarshal([]byte(out), &migrated))
	assert.Equal(t, 0, migrated.From)
	assert.Equal(t, migrated.Latest, migrated.To)
	require.Len(t, migrated.Backups, migrated.Latest)

	// A second run has nothing to do.
	out, err = run(t, append(globals, "migrate")...)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &migrated))
	assert.Empty(t, migrated.Backups)

	out, err = run(t, append(globals, "backups")...)
	require.NoError(t, err)

	var listed []backup.Info
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, migrated.Latest)
	newest := listed[0]
	assert.Equal(t, migrated.Latest-1, newest.FromVersion)

	out, err = run(t, append(globals, "restore", "--dry-run", newest.ID)...)
	require.NoError(t, err)
	var dry backup.RestoreResult
	require.NoError(t, json.Unmarshal([]byte(out), &dry))
	assert.True(t, dry.DryRun)
	assert.Equal(t, newest.FromVersion, dry.SchemaVersion)

	dest := filepath.Join(dir, "restored.sqlite3")
	_, err = run(t, append(globals, "restore", "--dest", dest, newest.ID)...)
	require.NoError(t, err)
	assert.FileExists(t, dest)

	// Existing files are only replaced with --force.
	_, err = run(t, append(globals, "restore", "--dest", dest, newest.ID)...)
	require.ErrorIs(t, err, backup.ErrDatabaseExists)

	_, err = run(t, append(globals, "restore", "--force", "--dest", dest, newest.ID)...)
	require.NoError(t, err)
}

func TestBackups_EmptyText(t *testing.T) {
	_, globals := isolate(t)
	text := globals[:len(globals)-1] // drop --json

	out, err := run(t, append(text, "backups")...)
	require.NoError(t, err)
	assert.Contains(t, out, "No snapshots in")
}
