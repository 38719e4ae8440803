package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/riandyrn/otelchi"
	"github.com/rs/zerolog/log"

	"github.com/pagewatch/pagewatch/internal/middleware"
)

type Config struct {
	TraceHandler   http.Handler
	AnalyzeHandler http.Handler
	AlertHandler   http.Handler
	ServiceName    string
	TracingEnabled bool

	// RequestTimeout bounds every request, including browser captures.
	RequestTimeout time.Duration
}

func New(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimiddleware.Recoverer,
		chimiddleware.Timeout(cfg.RequestTimeout),
		chimiddleware.Heartbeat("/healthz"), // Liveness probe
		middleware.Logger(log.Logger),
	)

	if cfg.TracingEnabled {
		r.Use(otelchi.Middleware(cfg.ServiceName, otelchi.WithChiRoutes(r)))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Method(http.MethodGet, "/trace", cfg.TraceHandler)
		r.Method(http.MethodPost, "/trace", cfg.TraceHandler)

		// Analyze and Alert receive CloudEvents from Eventarc
		r.With(middleware.CloudEvent).
			Method(http.MethodPost, "/analyze", cfg.AnalyzeHandler)
		r.With(middleware.CloudEvent).
			Method(http.MethodPost, "/alert", cfg.AlertHandler)
	})

	return r
}
