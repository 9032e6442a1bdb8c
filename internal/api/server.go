// Package api provides the HTTP server of the webmention receiver: the public
// HTML pages and feeds, the receiver endpoint and a read-only JSON API.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/listenupapp/webmention-receiver/internal/http/response"
	"github.com/listenupapp/webmention-receiver/internal/metrics"
	"github.com/listenupapp/webmention-receiver/internal/ratelimit"
	"github.com/listenupapp/webmention-receiver/internal/render"
	"github.com/listenupapp/webmention-receiver/internal/service"
	"github.com/listenupapp/webmention-receiver/internal/store"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// Options holds the dependencies of a Server.
type Options struct {
	Mentions *service.MentionService
	Renderer *render.Renderer
	Store    store.Store
	Metrics  *metrics.Metrics

	// Gatherer serves /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// ReceiverLimiter throttles POST /{domain}/receiver per client IP.
	// Nil disables rate limiting.
	ReceiverLimiter *ratelimit.KeyedRateLimiter

	// LatestSchema is the schema version this build migrates to.
	LatestSchema int

	Logger *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	mentions        *service.MentionService
	renderer        *render.Renderer
	store           store.Store
	metrics         *metrics.Metrics
	gatherer        prometheus.Gatherer
	receiverLimiter *ratelimit.KeyedRateLimiter
	latestSchema    int
	router          *chi.Mux
	api             huma.API
	logger          *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(opts Options) *Server {
	router := chi.NewRouter()

	s := &Server{
		mentions:        opts.Mentions,
		renderer:        opts.Renderer,
		store:           opts.Store,
		metrics:         opts.Metrics,
		gatherer:        opts.Gatherer,
		receiverLimiter: opts.ReceiverLimiter,
		latestSchema:    opts.LatestSchema,
		router:          router,
		logger:          opts.Logger,
	}

	s.setupMiddleware()

	humaConfig := huma.DefaultConfig("Webmention Receiver API", Version)
	humaConfig.OpenAPIPath = "/api/openapi"
	humaConfig.DocsPath = "/api/docs"
	humaConfig.SchemasPath = "/api/schemas"
	s.api = humachi.New(router, humaConfig)
	RegisterErrorHandler()

	s.setupRoutes()

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Location"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all HTTP routes. Static paths win over /{domain}
// in chi's tree, so /health, /metrics and /api/* are never read as domains.
func (s *Server) setupRoutes() {
	s.registerHealthRoutes()
	s.registerMentionRoutes()

	if s.gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Get("/", s.handleIndex)
	s.router.Get("/robots.txt", s.handleRobots)
	s.router.Get("/assets/*", s.handleAsset)

	s.router.Route("/{domain}", func(r chi.Router) {
		r.Get("/", s.handleDomain)
		r.Get("/feed.xml", s.handleFeed)
		r.Get("/mention/{id}", s.handleMention)
		r.With(s.receiverRateLimit).Post("/receiver", s.handleReceive)
	})

	s.router.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.NotFound(w, s.logger)
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "405 method not allowed", s.logger)
	})
}
