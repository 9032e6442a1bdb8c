package providers

import (
	"log/slog"
	"time"

	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/config"
	"github.com/listenupapp/webmention-receiver/internal/metrics"
	"github.com/listenupapp/webmention-receiver/internal/ratelimit"
	"github.com/listenupapp/webmention-receiver/internal/render"
	"github.com/listenupapp/webmention-receiver/internal/service"
	"github.com/listenupapp/webmention-receiver/internal/validation"
)

// limiterTTL is how long an idle client IP keeps its token bucket.
const limiterTTL = 10 * time.Minute

// ProvideValidator provides the request validator.
func ProvideValidator(_ do.Injector) (*validation.Validator, error) {
	return validation.New(), nil
}

// ProvideMentionService provides the ingestion and query service.
func ProvideMentionService(i do.Injector) (*service.MentionService, error) {
	// Ensure the schema is current before anything can write.
	_ = do.MustInvoke[*Schema](i)

	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	v := do.MustInvoke[*validation.Validator](i)
	m := do.MustInvoke[*metrics.Metrics](i)
	log := do.MustInvoke[*slog.Logger](i)

	if cfg.Receiver.AllowedDomains != nil {
		log.Info("Receiver restricted to allow-list", "domains", cfg.Receiver.AllowedDomains)
	}

	return service.NewMentionService(storeHandle.Store, v, m, cfg.Receiver, log)
}

// ProvideRenderer provides the HTML and feed renderer.
func ProvideRenderer(i do.Injector) (*render.Renderer, error) {
	cfg := do.MustInvoke[*config.Config](i)
	return render.New(cfg.Receiver.ExternalURL)
}

// RateLimiterHandle wraps the receiver rate limiter with shutdown capability.
// Limiter is nil when rate limiting is disabled.
type RateLimiterHandle struct {
	Limiter *ratelimit.KeyedRateLimiter
}

// Shutdown implements do.Shutdownable.
func (h *RateLimiterHandle) Shutdown() error {
	if h.Limiter != nil {
		h.Limiter.Stop()
	}
	return nil
}

// ProvideRateLimiter provides the per-IP limiter of the receiver endpoint.
func ProvideRateLimiter(i do.Injector) (*RateLimiterHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*slog.Logger](i)

	perMinute := cfg.Receiver.RateLimitPerMinute
	if perMinute <= 0 {
		log.Info("Receiver rate limiting disabled")
		return &RateLimiterHandle{}, nil
	}

	rps := float64(perMinute) / time.Minute.Seconds()
	return &RateLimiterHandle{Limiter: ratelimit.New(rps, cfg.Receiver.RateLimitBurst, limiterTTL)}, nil
}
