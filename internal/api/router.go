package api

import (
	"encoding/json"
	"net/http"

	"github.com/artloom/artloom/internal/api/handlers"
	"github.com/artloom/artloom/internal/api/middleware"
	"github.com/artloom/artloom/internal/config"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAPIKeyAuth(cfg.Auth.Keys).Middleware)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// Stored media
	r.Handle("/files/*", h.Media.FileServer())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Chat pipeline
		r.Post("/chat/process", h.ProcessChat)

		// Generation
		r.Route("/generate/{kind}", func(r chi.Router) {
			r.Post("/", h.Generate)
			r.Post("/webhook", h.Webhook)
		})

		// Canvases
		r.Route("/canvases", func(r chi.Router) {
			r.Get("/", h.ListCanvases)
			r.Post("/", h.CreateCanvas)
			r.Route("/{canvasID}", func(r chi.Router) {
				r.Get("/", h.GetCanvas)
				r.Patch("/", h.UpdateCanvas)
				r.Delete("/", h.DeleteCanvas)
				r.Get("/messages", h.ListMessages)
				r.Get("/events", h.CanvasEvents)
				r.Route("/agents", func(r chi.Router) {
					r.Get("/", h.ListAgents)
					r.Post("/", h.CreateAgent)
					r.Post("/deleting", h.MarkAgentsDeleting)
				})
			})
		})

		// Agents
		r.Route("/agents/{agentID}", func(r chi.Router) {
			r.Get("/", h.GetAgent)
			r.Patch("/", h.PatchAgent)
			r.Delete("/", h.DeleteAgent)
			r.Post("/generate", h.RegenerateAgent)
			r.Post("/connect", h.ConnectAgents)
			r.Post("/disconnect", h.DisconnectAgent)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "artloom",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "artloom",
		})
	}
}
