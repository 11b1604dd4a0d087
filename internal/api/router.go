package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/", servePage("index.html"))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
		r.Post("/register", apiHandler.RegisterHandler)
	})

	r.Route("/chat", func(r chi.Router) {
		r.Get("/", servePage("chat.html"))
		r.Post("/api/sessions", apiHandler.CreateSessionHandler)

		r.Group(func(r chi.Router) {
			r.Use(apiHandler.SessionAuthMiddleware)
			r.Post("/api/messages", apiHandler.PostMessageHandler)
			r.Delete("/api/sessions", apiHandler.EndSessionHandler)
		})
	})

	return r
}
