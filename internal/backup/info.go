package backup

import "time"

// Info describes an existing snapshot.
type Info struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	FromVersion int       `json:"from_version"` // schema version the snapshot was taken at
	CreatedAt   time.Time `json:"created_at"`
	Size        int64     `json:"size"`
}

// RestoreOptions configures a restore.
type RestoreOptions struct {
	Force  bool // overwrite an existing database file
	DryRun bool // verify the snapshot without copying
}

// RestoreResult contains the outcome of a restore.
type RestoreResult struct {
	Backup        Info   `json:"backup"`
	Destination   string `json:"destination"`
	SchemaVersion int    `json:"schema_version"`
	Mentions      int64  `json:"mentions"`
	DryRun        bool   `json:"dry_run"`
}
