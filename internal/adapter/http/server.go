package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/watkajtys/earthquake-sub007/internal/backfill"
	"github.com/watkajtys/earthquake-sub007/internal/domain"
	"github.com/watkajtys/earthquake-sub007/internal/monitor"
	"github.com/watkajtys/earthquake-sub007/internal/proxy"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker = sharedobs.ReadinessChecker

// ReadinessFunc adapts a function to ReadinessChecker.
type ReadinessFunc func(ctx context.Context) error

func (f ReadinessFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

// AllReady is ready once every non-nil checker is, reporting the first failure.
func AllReady(checkers ...ReadinessChecker) ReadinessChecker {
	return ReadinessFunc(func(ctx context.Context) error {
		for _, c := range checkers {
			if c == nil {
				continue
			}
			if err := c.CheckReadiness(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// ProxyService serves upstream responses through the edge cache.
type ProxyService interface {
	Serve(ctx context.Context, cacheKey, apiURL string) (proxy.Response, error)
}

// BackfillRunner loads a historical date range.
type BackfillRunner interface {
	Run(ctx context.Context, r backfill.Range) (backfill.Result, error)
}

// OverviewService exposes the merge engine.
type OverviewService interface {
	Snapshot() monitor.Snapshot
	LoadMonthly(ctx context.Context)
}

// RecordReader reads persisted records.
type RecordReader interface {
	Get(ctx context.Context, id string) (domain.EarthquakeRecord, error)
	Recent(ctx context.Context, sinceMillis int64, limit int) ([]domain.EarthquakeRecord, error)
}

// Services are the optional route backends. A nil service leaves its routes
// unregistered.
type Services struct {
	Ready    ReadinessChecker
	Proxy    ProxyService
	Backfill BackfillRunner
	Overview OverviewService
	Records  RecordReader
}

// Server exposes the API plus health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// routes of every configured service.
func NewServer(addr string, svc Services, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     r,
			ReadTimeout: 10 * time.Second,
			// Backfills hold the connection while they run.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}

	ready := svc.Ready
	if ready == nil {
		ready = AllReady()
	}
	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if svc.Proxy != nil {
			r.Get("/usgs-proxy", s.handleProxy(svc.Proxy))
		}
		if svc.Backfill != nil {
			r.Get("/batch-usgs-fetch", s.handleBackfill(svc.Backfill))
		} else {
			r.Get("/batch-usgs-fetch", s.handleNoDatabase)
		}
		if svc.Overview != nil {
			r.Get("/overview", handleOverview(svc.Overview))
			r.Post("/overview/monthly", handleLoadMonthly(svc.Overview))
		}
		if svc.Records != nil {
			r.Get("/earthquakes", s.handleListRecords(svc.Records))
			r.Get("/earthquakes/{id}", s.handleGetRecord(svc.Records))
		}
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
