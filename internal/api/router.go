// Package api exposes ingestion and queries over http.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/vinceanalytics/beacon/internal/errtrack"
	"github.com/vinceanalytics/beacon/internal/flow"
	"github.com/vinceanalytics/beacon/internal/funnel"
	"github.com/vinceanalytics/beacon/internal/heartbeat"
	"github.com/vinceanalytics/beacon/internal/ingest"
	"github.com/vinceanalytics/beacon/internal/metrics"
	"github.com/vinceanalytics/beacon/internal/query"
	"github.com/vinceanalytics/beacon/internal/stats"
)

type Deps struct {
	Ingest   *ingest.Service
	Resolver query.Resolver
	Engine   *stats.Engine
	Funnel   *funnel.Analyzer
	Flow     *flow.Analyzer
	Live     *heartbeat.Tracker
	Errors   *errtrack.Tracker
	Log      *slog.Logger

	AllowedOrigins []string
	// RateLimit is the number of ingestion requests accepted per client
	// address and minute, 0 disables limiting.
	RateLimit int
}

type handler struct {
	Deps
	log *slog.Logger
}

func New(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	h := &handler{Deps: d, log: log.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.access)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", metrics.New())

	r.Route("/v1/log", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if d.RateLimit > 0 {
				r.Use(httprate.LimitByIP(d.RateLimit, time.Minute))
			}
			r.Post("/pageview", h.pageview)
			r.Post("/event", h.customEvent)
			r.Post("/perf", h.performance)
			r.Post("/error", h.clientError)
			r.Post("/hb", h.heartbeat)
			r.Get("/noscript", h.noscript)
		})

		r.Get("/projects", h.overview)
		r.Route("/projects/{pid}", func(r chi.Router) {
			r.Get("/timeseries", h.timeseries)
			r.Get("/events", h.customEvents)
			r.Get("/meta", h.meta)
			r.Get("/perf", h.perf)
			r.Get("/sessions", h.sessions)
			r.Get("/sessions/{psid}", h.session)
			r.Get("/funnel", h.funnelSteps)
			r.Get("/flow", h.userFlow)
			r.Get("/online", h.online)
			r.Get("/live", h.live)
			r.Get("/errors", h.errorList)
			r.Get("/errors/{eid}", h.errorDetail)
			r.Post("/errors/status", h.errorStatus)
		})
	})
	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("content-type", "text/plain")
	w.Write([]byte("ok"))
}

func (h *handler) access(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"elapsed", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
