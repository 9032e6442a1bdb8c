package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/listenupapp/webmention-receiver/internal/backup"
	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/logger"
)

// backupService builds the snapshot service without opening the database,
// so it also works while the database is unreadable.
func backupService(g *GlobalFlags) (*backup.Service, *config.Config, error) {
	cfg, err := config.Load(g.overrides())
	if err != nil {
		return nil, nil, err
	}

	log := logger.New(logger.Config{
		Writer:     os.Stderr,
		Level:      logger.ParseLevel(cfg.Logger.Level),
		Production: cfg.IsProduction(),
	})

	return backup.NewService(cfg.Store.BackupDir, log), cfg, nil
}

// Execute implements the go-flags Commander interface for BackupsCommand.
func (c *BackupsCommand) Execute(_ []string) error {
	svc, _, err := backupService(c.globals)
	if err != nil {
		return err
	}

	backups, err := svc.List(context.Background())
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}

	if c.globals.JSON {
		if backups == nil {
			backups = []backup.Info{}
		}
		return writeJSON(c.out, backups)
	}

	if len(backups) == 0 {
		fmt.Fprintf(c.out, "No snapshots in %s\n", svc.Dir())
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFROM VERSION\tCREATED\tSIZE")
	for _, b := range backups {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%d\n", b.ID, b.FromVersion, b.CreatedAt.UTC().Format("2006-01-02 15:04:05"), b.Size)
	}
	return tw.Flush()
}

// Execute implements the go-flags Commander interface for RestoreCommand.
func (c *RestoreCommand) Execute(_ []string) error {
	svc, cfg, err := backupService(c.globals)
	if err != nil {
		return err
	}

	dest := c.Destination
	if dest == "" {
		dest = cfg.Store.DatabasePath
	}

	res, err := svc.Restore(context.Background(), c.Args.ID, dest, backup.RestoreOptions{
		Force:  c.Force,
		DryRun: c.DryRun,
	})
	if err != nil {
		return fmt.Errorf("restore %s: %w", c.Args.ID, err)
	}

	if c.globals.JSON {
		return writeJSON(c.out, res)
	}

	if res.DryRun {
		fmt.Fprintf(c.out, "Snapshot %s is valid: schema version %d, %d mentions\n", res.Backup.ID, res.SchemaVersion, res.Mentions)
		return nil
	}

	fmt.Fprintf(c.out, "Restored %s to %s: schema version %d, %d mentions\n", res.Backup.ID, res.Destination, res.SchemaVersion, res.Mentions)
	return nil
}
