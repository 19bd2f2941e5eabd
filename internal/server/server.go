// Package server assembles the HTTP surface: the REST API under /api/v1,
// the WebSocket and SSE realtime endpoints and health probes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/ideaboard/internal/api/v1"
	"github.com/gosuda/ideaboard/internal/config"
	"github.com/gosuda/ideaboard/internal/server/middleware"
)

// Realtime is the live-update endpoint set served by the hub.
type Realtime interface {
	v1.RealtimeStats
	ServeWS(w http.ResponseWriter, r *http.Request)
	ServeSSE(w http.ResponseWriter, r *http.Request)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP server that wires all application routes and middleware.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	checks     map[string]Pinger
}

// Options carries the optional parts of the server.
type Options struct {
	// Checks are probed by /readyz, keyed by name.
	Checks map[string]Pinger
	// Assets, when set, is served on every unmatched route.
	Assets fs.FS
}

// New creates a Server with all routes wired. ctx bounds the background
// rate limiter janitors.
func New(ctx context.Context, cfg *config.Config, boardSvc v1.BoardService, authSvc v1.AuthService, rt Realtime, opts Options) *Server {
	installErrorMapping()

	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(requestLogger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Last-Event-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		checks: opts.Checks,
		httpServer: &http.Server{
			Addr:         cfg.Server.Addr,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	secret := cfg.JWT.Secret

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(ctx, cfg.Server.IPRateLimit, cfg.Server.IPRateBurst))

		// Register, login and refresh take no credential, so a stale access
		// token sent along cannot block a refresh.
		r.Group(func(r chi.Router) {
			authCfg := apiConfig("Ideaboard Auth API")
			authCfg.OpenAPIPath = "/auth/openapi"
			authCfg.DocsPath = ""
			authCfg.SchemasPath = "/auth/schemas"
			registerAuthRoutes(humachi.New(r, authCfg), authSvc)
		})

		// Reads are public, mutations require a principal.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(secret))
			r.Use(middleware.RateLimit(ctx, cfg.Server.RateLimit, cfg.Server.RateBurst))
			registerBoardRoutes(humachi.New(r, apiConfig("Ideaboard API")), boardSvc, authSvc, rt)
		})
	})

	registerRealtimeRoutes(router, secret, rt)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Get("/readyz", s.ready)

	if opts.Assets != nil {
		router.NotFound(staticFileServer(opts.Assets).ServeHTTP)
		log.Info().Msg("static board assets enabled")
	}

	return s
}

func apiConfig(title string) huma.Config {
	c := huma.DefaultConfig(title, "1.0.0")
	c.Servers = []*huma.Server{{URL: "/api/v1"}}
	return c
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
