package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itstheanurag/fnrunner/internal/limiter"
)

func NewRouter(h *Handler, rl *limiter.RateLimiter, corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/functions", func(r chi.Router) {
		r.Get("/", h.ListFunctions)
		r.Post("/", h.CreateFunction)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetFunction)
			r.Put("/", h.UpdateFunction)
			r.Delete("/", h.DeleteFunction)
			r.Get("/executions", h.ListExecutions)
		})
	})

	r.With(rl.Middleware).HandleFunc("/invoke/{route}", h.Invoke)

	return r
}
