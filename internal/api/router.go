package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	apihandler "github.com/maraichr/pipetrack/internal/api/handler"
	apimw "github.com/maraichr/pipetrack/internal/api/middleware"
	"github.com/maraichr/pipetrack/internal/tracking"
)

// RouterDeps holds the services the router exposes.
type RouterDeps struct {
	History  *tracking.History
	Runner   *tracking.Runner
	Recorder *tracking.Recorder

	// Pool backs the readiness check; nil skips the DB ping (dev mode).
	Pool *pgxpool.Pool
}

func NewRouter(logger *slog.Logger, deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(apimw.Logger(logger))
	r.Use(apimw.CORS)
	r.Use(chimw.Recoverer)

	// Health checks
	health := apihandler.NewHealthHandler(deps.Pool)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	// API v1
	r.Route("/api/v1/pipelines", func(r chi.Router) {
		processes := apihandler.NewProcessHandler(logger, deps.History)
		runs := apihandler.NewRunHandler(logger, deps.Runner)
		admin := apihandler.NewAdminHandler(logger, deps.Recorder)

		r.Get("/search", processes.Search)
		r.Get("/running", processes.Running)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", processes.AllHistory)
			r.Get("/{datasetKey}", processes.DatasetHistory)
		})

		r.Route("/{datasetKey}/{attempt}", func(r chi.Router) {
			r.Get("/", processes.Get)
			r.Post("/run", runs.Run)
		})

		r.Route("/executions", func(r chi.Router) {
			r.Get("/{executionKey}/steps", processes.ExecutionSteps)
			r.Post("/{executionKey}/abort", admin.Abort)
			r.Post("/finish-all", admin.FinishAll)
		})
	})

	return r
}
