package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matchpoint/notify-engine/internal/api/handler"
	apimw "github.com/matchpoint/notify-engine/internal/api/middleware"
	"github.com/matchpoint/notify-engine/internal/repository"
	"github.com/matchpoint/notify-engine/internal/scheduler"
	"github.com/matchpoint/notify-engine/internal/tracking"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	queueRepo repository.QueueRepository,
	jobRepo repository.JobRepository,
	subRepo repository.SubscriptionRepository,
	sched *scheduler.Scheduler,
	collector *tracking.Collector,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)          // recover panics, return 500
	r.Use(chimw.RealIP)             // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1<<20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)      // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(queueRepo, logger)
	jh := handler.NewJobHandler(sched, jobRepo, logger)
	th := handler.NewTrackingHandler(collector)
	sh := handler.NewSubscriptionHandler(subRepo)
	ah := handler.NewAnalyticsHandler(collector)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Tracking endpoints live outside /api/v1: their URLs are baked into
	// delivered message bodies and must stay stable.
	r.Get("/tracking/pixel/{id}", th.Pixel)
	r.Get("/tracking/click/{id}", th.Click)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/notifications", nh.Create)
		r.Get("/notifications/{id}", nh.GetByID)

		r.Post("/jobs", jh.Create)
		r.Get("/jobs", jh.List)
		r.Get("/jobs/{name}", jh.Get)
		r.Patch("/jobs/{name}", jh.Update)
		r.Post("/jobs/{name}/run", jh.Run)
		r.Get("/jobs/{name}/executions", jh.Executions)

		r.Post("/subscriptions", sh.Subscribe)
		r.Delete("/subscriptions/{token}", sh.Unsubscribe)

		r.Get("/analytics", ah.Get)
	})

	return r
}
