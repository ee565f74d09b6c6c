/**
 * @description
 * This file sets up the HTTP router for the wallet-service using the
 * go-chi/chi router. It defines the API routes under the /v1 prefix, applies
 * middleware for logging, panic recovery, timeouts and CORS, and maps the
 * routes to their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the wallet-service routes.
func NewRouter(h *BalanceHandlers) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Service self-description and health check endpoints
	r.Get("/", h.ServiceInfoHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Wallet service is healthy"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/", h.CreateBalanceHandler)

		r.Route("/balances", func(r chi.Router) {
			r.Get("/{id}", h.GetBalanceHandler)
			r.Put("/{id}", h.AddBalanceHandler)
			r.Put("/transfer/{id}", h.TransferBalanceHandler)
			r.Get("/operations/{id}", h.ListOperationsHandler)
		})
	})

	return r
}
