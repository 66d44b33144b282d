package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"portal.health/patient-portal/internal/metrics"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/signup", apiHandler.SignupHandler)
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/products", apiHandler.ListProductsHandler)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", apiHandler.GetCartHandler)
				r.Delete("/", apiHandler.ClearCartHandler)
				r.Post("/items", apiHandler.AddToCartHandler)
				r.Patch("/items/{itemID}", apiHandler.UpdateCartItemHandler)
				r.Delete("/items/{itemID}", apiHandler.RemoveCartItemHandler)
			})

			r.Route("/activity-sessions", func(r chi.Router) {
				r.Post("/", apiHandler.StartActivitySessionHandler)
				r.Get("/{sessionID}/active", apiHandler.ActiveSessionHandler)
				r.Post("/{sessionID}/messages", apiHandler.ActivityMessageHandler)
				r.Post("/{sessionID}/end", apiHandler.EndActivitySessionHandler)
			})
		})
	})

	return r
}
