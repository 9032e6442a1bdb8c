package cli

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/di"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(_ []string) error {
	cfg, err := config.Load(c.globals.overrides())
	if err != nil {
		return err
	}

	injector := di.NewContainer(cfg)

	if _, err := di.Bootstrap(injector); err != nil {
		_ = injector.Shutdown()
		return fmt.Errorf("bootstrap server: %w", err)
	}

	log := do.MustInvoke[*slog.Logger](injector)
	log.Info("Receiver ready", "version", c.version)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server gracefully...")

	// The container shuts providers down in reverse dependency order:
	// HTTP server first, database last.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
		return err
	}

	log.Info("Shutdown complete")
	return nil
}
