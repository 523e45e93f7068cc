package server

import (
	"net/http"

	"github.com/echoboard/echoboard/internal/events"
	"github.com/echoboard/echoboard/internal/handler"
	"github.com/echoboard/echoboard/internal/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Account-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth)
	healthHandler := handler.NewHealthHandler(s.store, s.cfg.ProjectTable, s.nats)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	var publisher *events.Publisher
	if s.nats != nil {
		publisher = events.NewPublisher(s.nats.JetStream())
	}
	projectHandler := handler.NewProjectHandler(s.dir, publisher)
	tokenHandler := handler.NewTokenHandler(s.tokens)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(s.cfg))
		r.Use(middleware.RateLimit(s.rateLimiter))

		// Projects
		r.Post("/projects", projectHandler.Create)
		r.Get("/projects/{projectId}", projectHandler.Get)
		r.Put("/projects/{projectId}", projectHandler.Update)
		r.Delete("/projects/{projectId}", projectHandler.Delete)
		r.Post("/projects/{projectId}/webhooks", projectHandler.AddWebhookListener)
		r.Delete("/projects/{projectId}/webhooks", projectHandler.RemoveWebhookListener)

		// Slug resolution
		r.Get("/slugs/{slug}", projectHandler.GetBySlug)

		// Verification tokens
		r.Post("/tokens", tokenHandler.Create)
		r.Post("/tokens/verify", tokenHandler.Verify)
	})

	return r
}
