package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with configured routes, middleware, and
// handlers: task routes, queue stats, health check, and Prometheus metrics.
func NewRouter(queue QueueService, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	taskHandler := NewTaskHandler(queue, logger)

	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", taskHandler.EnqueueTasks)
		r.Get("/{taskID}", taskHandler.GetTask)
		r.Post("/{taskID}/cancel", taskHandler.CancelTask)
		r.Post("/{taskID}/retry", taskHandler.RetryTask)
	})

	r.Get("/queue", taskHandler.GetQueueStats)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
