package providers

import (
	"context"
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/backup"
	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/metrics"
	"github.com/listenupapp/webmention-receiver/internal/migrate"
	"github.com/listenupapp/webmention-receiver/internal/store/sqlite"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the SQLite database. The schema is not touched here;
// see ProvideSchema.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	st, err := sqlite.Open(cfg.Store.DatabasePath, log)
	if err != nil {
		return nil, err
	}

	log.Info("Database opened", "path", cfg.Store.DatabasePath)

	return &StoreHandle{Store: st}, nil
}

// ProvideBackups provides the migration snapshot service.
func ProvideBackups(i do.Injector) (*backup.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	return backup.NewService(cfg.Store.BackupDir, log), nil
}

// ProvideMigrator provides the schema migrator.
func ProvideMigrator(i do.Injector) (*migrate.Migrator, error) {
	storeHandle := do.MustInvoke[*StoreHandle](i)
	backups := do.MustInvoke[*backup.Service](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*slog.Logger](i)

	return migrate.New(storeHandle.DB(), backups, m.MigrationsApplied, log)
}

// Schema is the outcome of the startup migration.
type Schema struct {
	*migrate.Result
	Latest int
}

// ProvideSchema migrates the database to the latest version. Anything that
// reads or writes mentions depends on it, so no request is served against
// an old schema.
func ProvideSchema(i do.Injector) (*Schema, error) {
	migrator := do.MustInvoke[*migrate.Migrator](i)
	log := do.MustInvoke[*slog.Logger](i)

	res, err := migrator.Run(context.Background())
	if err != nil {
		return nil, err
	}

	log.Info("Database schema ready",
		"version", res.To,
		"applied", res.Applied(),
		"backups", len(res.Backups),
	)

	return &Schema{Result: res, Latest: migrator.Latest()}, nil
}
