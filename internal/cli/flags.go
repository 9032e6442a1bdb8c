package cli

import (
	"io"

	"github.com/listenupapp/webmention-receiver/internal/config"
)

// GlobalFlags are accepted by every command. Set values override the
// environment and the config file.
type GlobalFlags struct {
	Config         string   `long:"config" short:"c" description:"Path to YAML config file (default: config.yaml)"`
	EnvFile        string   `long:"env-file" description:"Path to .env file (default: .env)"`
	Environment    string   `long:"environment" description:"development, staging or production"`
	LogLevel       string   `long:"log-level" description:"debug, info, warn or error"`
	Bind           string   `long:"bind" description:"Listen address (host:port)"`
	ExternalURL    string   `long:"external-url" description:"Public base URL of this receiver"`
	Database       string   `long:"database" description:"Path to the SQLite database"`
	BackupDir      string   `long:"backup-dir" description:"Directory for migration snapshots"`
	AllowedDomains []string `long:"allowed-domain" description:"Accept mentions only for this domain (repeatable)"`
	JSON           bool     `long:"json" description:"Output in JSON format"`
	Version        bool     `long:"version" description:"Show version and exit"`
}

func (g *GlobalFlags) overrides() config.Overrides {
	return config.Overrides{
		ConfigFile:     g.Config,
		EnvFile:        g.EnvFile,
		Environment:    g.Environment,
		LogLevel:       g.LogLevel,
		Bind:           g.Bind,
		ExternalURL:    g.ExternalURL,
		DatabasePath:   g.Database,
		BackupDir:      g.BackupDir,
		AllowedDomains: g.AllowedDomains,
	}
}

// ServeCommand migrates the database and runs the HTTP server.
type ServeCommand struct {
	globals *GlobalFlags
	version string
}

// MigrateCommand migrates the database and exits.
type MigrateCommand struct {
	globals *GlobalFlags
	out     io.Writer
}

// BackupsCommand lists migration snapshots.
type BackupsCommand struct {
	globals *GlobalFlags
	out     io.Writer
}

// RestoreCommand restores the database from a migration snapshot.
type RestoreCommand struct {
	Destination string `long:"dest" description:"Restore to this path instead of the configured database"`
	Force       bool   `long:"force" description:"Replace an existing database file"`
	DryRun      bool   `long:"dry-run" description:"Verify the snapshot without restoring it"`

	Args struct {
		ID string `positional-arg-name:"backup-id" required:"yes"`
	} `positional-args:"yes"`

	globals *GlobalFlags
	out     io.Writer
}
