// Package providers contains dependency injection providers for the
// webmention receiver.
package providers

import (
	"log/slog"

	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/logger"
)

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*slog.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:      logger.ParseLevel(cfg.Logger.Level),
		AddSource:  cfg.App.Environment == "development",
		Production: cfg.IsProduction(),
	})

	log.Info("Starting webmention receiver",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"external_url", cfg.Receiver.ExternalURL,
		"database", cfg.Store.DatabasePath,
	)

	return log, nil
}
