// Package api wires the HTTP routes of the review studio.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/reviewstudio/studio/internal/api/handlers"
	"github.com/reviewstudio/studio/internal/api/middleware"
	"github.com/reviewstudio/studio/internal/config"
)

// NewRouter creates the HTTP router with all API routes. mcp, when non-nil,
// is mounted at /mcp (streamable HTTP transport).
func NewRouter(cfg *config.Config, h *handlers.Handlers, mcp http.Handler) http.Handler {
	r := chi.NewRouter()
	auth := middleware.NewAPIKeyAuth(cfg.Auth.APIKeys, cfg.Auth.APIKeyHeader)

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5, "application/json", "application/yaml", "text/html"))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", cfg.Auth.APIKeyHeader, middleware.SessionHeader, "X-Request-Id", "Mcp-Session-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id", "Mcp-Session-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	if mcp != nil {
		r.Handle("/mcp", mcp)
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.Search)
		r.Get("/device", h.DeviceView)
		r.Get("/providers", h.ListProviders)
		r.Get("/magics", h.ListMagics)
		r.Post("/highlight", h.Highlight)

		// Process-wide agent configuration (default for new sessions)
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.GetAgents)
			r.Put("/", h.PutAgents)
			r.Get("/yaml", h.GetAgentsYAML)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)

			r.Route("/{"+middleware.SessionIDParam+"}", func(r chi.Router) {
				r.Use(middleware.SessionLoader(h.Sessions))

				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Post("/reset", h.ResetSession)

				r.Post("/search", h.SessionSearch)
				r.Get("/text", h.GetText)
				r.Put("/text", h.PutText)

				r.Route("/agents", func(r chi.Router) {
					r.Get("/", h.GetSessionAgents)
					r.Put("/", h.PutSessionAgents)
					r.Get("/yaml", h.GetSessionAgentsYAML)
				})
				r.Get("/skill", h.GetSkill)
				r.Put("/skill", h.PutSkill)

				r.Get("/credentials", h.GetCredentials)
				r.Put("/credentials/{provider}", h.PutCredential)

				// Execution
				r.Post("/pipeline", h.RunPipeline)
				r.Post("/steps", h.RunStep)
				r.Post("/magics", h.RunMagic)

				r.Get("/runs", h.ListRuns)
				r.Put("/runs/{runID}", h.EditRun)

				r.Route("/report", func(r chi.Router) {
					r.Get("/", h.GetReport)
					r.Put("/", h.PutReport)
					r.Post("/append", h.AppendReport)
				})
				r.Get("/note", h.GetNote)
				r.Put("/note", h.PutNote)

				r.Route("/document", func(r chi.Router) {
					r.Get("/", h.GetDocument)
					r.Post("/", h.UploadDocument)
					r.Get("/preview", h.PreviewDocument)
					r.Post("/trim", h.TrimDocument)
					r.Post("/extract", h.ExtractDocument)
				})

				// Observability
				r.Get("/journal", h.ListJournal)
				r.Get("/logs", h.GetLogs)
				r.Get("/logs/stream", h.StreamLogs)
			})
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "review-studio",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "review-studio",
		})
	}
}
