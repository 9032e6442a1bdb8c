package cli

import (
	"fmt"

	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/di"
)

type migrateJSON struct {
	From    int      `json:"from"`
	To      int      `json:"to"`
	Latest  int      `json:"latest"`
	Backups []string `json:"backups"`
}

// Execute implements the go-flags Commander interface for MigrateCommand.
func (c *MigrateCommand) Execute(_ []string) error {
	cfg, err := config.Load(c.globals.overrides())
	if err != nil {
		return err
	}

	injector := di.NewContainer(cfg)
	defer func() { _ = injector.Shutdown() }()

	schema, err := di.Migrate(injector)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	out := migrateJSON{
		From:    schema.From,
		To:      schema.To,
		Latest:  schema.Latest,
		Backups: make([]string, 0, len(schema.Backups)),
	}
	for _, b := range schema.Backups {
		out.Backups = append(out.Backups, b.ID)
	}

	if c.globals.JSON {
		return writeJSON(c.out, out)
	}

	if schema.Applied() == 0 {
		fmt.Fprintf(c.out, "Schema already at version %d\n", schema.To)
		return nil
	}

	fmt.Fprintf(c.out, "Migrated schema from version %d to %d\n", schema.From, schema.To)
	for _, id := range out.Backups {
		fmt.Fprintf(c.out, "  snapshot %s\n", id)
	}
	return nil
}
