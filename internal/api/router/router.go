// Package router assembles the HTTP surface: public health/metrics plus the
// tenant-authenticated API.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/innervoice/guide-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/innervoice/guide-ai-platform/internal/http/middleware"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Agents             *handlers.AgentsHandler
	Protocols          *handlers.ProtocolsHandler
	ChatSocket         *handlers.ChatSocketHandler
	MetricsHandler     http.Handler
	TenantJWTSecret    string
	CORSAllowedOrigins []string
	RateLimit          *httpmiddleware.TenantRateLimiter
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Tenant-scoped API.
	r.Group(func(api chi.Router) {
		api.Use(httpmiddleware.TenantJWT(cfg.TenantJWTSecret))
		if cfg.RateLimit != nil {
			api.Use(cfg.RateLimit.Middleware)
		}

		if cfg.Agents != nil {
			api.Route("/agents", func(r chi.Router) {
				r.Post("/", cfg.Agents.CreateAgent)
				r.Route("/{agentID}", func(r chi.Router) {
					r.Get("/", cfg.Agents.GetAgent)
					r.Patch("/", cfg.Agents.UpdateAgent)
					r.Delete("/", cfg.Agents.ArchiveAgent)
					r.Get("/versions", cfg.Agents.ListVersions)
					r.Get("/threads", cfg.Agents.ListThreads)
					r.Post("/threads", cfg.Agents.CreateThread)
					r.Post("/chat", cfg.Agents.ChatWithAgent)
					if cfg.Protocols != nil {
						r.Post("/protocols", cfg.Protocols.Generate)
						r.Get("/protocols/latest", cfg.Protocols.LatestProtocol)
					}
				})
			})
			api.Post("/threads/{threadID}/messages", cfg.Agents.Chat)
		}

		if cfg.Protocols != nil {
			api.Get("/protocols/{protocolID}", cfg.Protocols.GetProtocol)
			api.Get("/protocols/{protocolID}/audio", cfg.Protocols.ListAudio)
			api.Get("/runs/{runID}", cfg.Protocols.GetRun)
		}

		if cfg.ChatSocket != nil {
			api.Get("/chat/socket", cfg.ChatSocket.HandleWebSocket)
		}
	})

	return r
}
