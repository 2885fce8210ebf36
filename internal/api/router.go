package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kochi-intel/agent-engine/internal/api/handlers"
	"github.com/kochi-intel/agent-engine/internal/api/middleware"
	"github.com/kochi-intel/agent-engine/internal/config"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(middleware.NewAPIKeyAuth().Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/capabilities", h.GetCapabilities)

		r.Route("/agents", func(r chi.Router) {
			r.Post("/validate", h.ValidateDefinition)
			r.Post("/preview", h.PreviewAgent)

			r.Route("/{agentId}", func(r chi.Router) {
				r.Post("/execute", h.ExecuteAgent)
				r.Get("/runs", h.ListAgentRuns)

				r.Route("/versions", func(r chi.Router) {
					r.Get("/", h.ListAgentVersions)
					r.Post("/", h.CreateAgentVersion)
				})
			})
		})

		r.Get("/versions/{versionId}", h.GetAgentVersion)
		r.Get("/runs/{runId}", h.GetAgentRun)

		// User-registered sources
		r.Route("/sources", func(r chi.Router) {
			r.Get("/", h.ListUserSources)
			r.Post("/", h.CreateUserSource)
			r.Get("/{sourceId}", h.GetUserSource)
			r.Put("/{sourceId}", h.UpdateUserSource)
			r.Delete("/{sourceId}", h.DeleteUserSource)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "agent-engine",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "agent-engine",
		})
	}
}
