package backup

import "errors"

var (
	// ErrBackupNotFound indicates the requested backup does not exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrBackupExists indicates a snapshot would overwrite an existing file.
	ErrBackupExists = errors.New("backup already exists")

	// ErrCorruptedBackup indicates the snapshot failed integrity checks.
	ErrCorruptedBackup = errors.New("backup integrity check failed")

	// ErrDatabaseExists indicates a restore target is present and force was not set.
	ErrDatabaseExists = errors.New("database file already exists")
)
