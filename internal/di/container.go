// Package di provides dependency injection configuration for the webmention
// receiver.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/di/providers"
)

// NewContainer creates and configures the DI container with all providers.
// cfg is loaded by the caller so command-line overrides apply.
func NewContainer(cfg *config.Config) *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.ProvideValue(injector, cfg)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideRegistry)
	do.Provide(injector, providers.ProvideMetrics)

	// Database layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideBackups)
	do.Provide(injector, providers.ProvideMigrator)
	do.Provide(injector, providers.ProvideSchema)

	// Business services
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideMentionService)
	do.Provide(injector, providers.ProvideRenderer)
	do.Provide(injector, providers.ProvideRateLimiter)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Migrate runs the schema migration without starting the server.
func Migrate(injector *do.RootScope) (*providers.Schema, error) {
	return do.Invoke[*providers.Schema](injector)
}

// Bootstrap migrates the database and starts the HTTP server.
func Bootstrap(injector *do.RootScope) (*providers.HTTPServerHandle, error) {
	if _, err := Migrate(injector); err != nil {
		return nil, err
	}
	return do.Invoke[*providers.HTTPServerHandle](injector)
}
