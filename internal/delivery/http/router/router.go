package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/prober-service/internal/delivery/http/handler"
	"github.com/user/prober-service/internal/delivery/http/middleware"
	"github.com/user/prober-service/pkg/metrics"
)

// Deps groups what the router mounts besides the REST handler.
type Deps struct {
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Push serves GET /ws. Optional.
	Push http.HandlerFunc
}

func New(h *handler.Handler, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	if deps.Push != nil {
		r.Get("/ws", deps.Push)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HandleHealthCheck)

		r.Post("/start", h.HandleStart)
		r.Post("/pause", h.HandlePause)
		r.Post("/resume", h.HandleResume)
		r.Post("/stop", h.HandleStop)
		r.Get("/status", h.HandleStatus)

		r.Get("/records", h.HandleRecords)
		r.Get("/export", h.HandleExport)
		r.Get("/proxies", h.HandleProxies)
		r.Post("/candidates", h.HandleEnqueue)
	})

	return r
}
