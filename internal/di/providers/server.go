package providers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/api"
	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/metrics"
	"github.com/listenupapp/webmention-receiver/internal/render"
	"github.com/listenupapp/webmention-receiver/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	// Addr is the address actually bound, useful when the config asks for port 0.
	Addr net.Addr
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer binds the listen address and starts serving in the
// background. A bind failure fails the provider.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)
	schema := do.MustInvoke[*Schema](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	mentions := do.MustInvoke[*service.MentionService](i)
	renderer := do.MustInvoke[*render.Renderer](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	limiter := do.MustInvoke[*RateLimiterHandle](i)

	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = do.MustInvoke[*prometheus.Registry](i)
	}

	handler := api.NewServer(api.Options{
		Mentions:        mentions,
		Renderer:        renderer,
		Store:           storeHandle.Store,
		Metrics:         m,
		Gatherer:        gatherer,
		ReceiverLimiter: limiter.Limiter,
		LatestSchema:    schema.Latest,
		Logger:          log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Bind,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelWarn),
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, err
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", ln.Addr().String(), "external_url", cfg.Receiver.ExternalURL)

	return &HTTPServerHandle{Server: srv, Addr: ln.Addr()}, nil
}
