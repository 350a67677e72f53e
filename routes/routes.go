package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/loomcast/script-gateway/app"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/health", deps.HealthHandler.Health)
	r.Get("/ready", deps.HealthHandler.Ready)

	// Generation endpoints
	r.Route("/generate", func(r chi.Router) {
		// Gated endpoints: identity is established (or the anonymous
		// principal injected) before any payload is read
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.Authenticate)
			r.Post("/chat", deps.GenerateHandler.HandleChat)
			r.Post("/script", deps.ScriptHandler.HandleScript)
		})

		// Single-prompt convenience path, no gate
		r.Post("/simple", deps.GenerateHandler.HandleSimple)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
