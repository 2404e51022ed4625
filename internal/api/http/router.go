package apihttp

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fleet-telemetry/internal/auth"
)

// Mounter registers a bounded context's routes.
type Mounter interface {
	Mount(r chi.Router)
}

// ReadinessCheck reports whether backing stores are reachable.
type ReadinessCheck func(ctx context.Context) error

// Options wires the HTTP surface.
type Options struct {
	JWTSecret     []byte
	IngestSecret  []byte
	IngestMaxSkew time.Duration
	// Ingest serves POST /ingest behind the device signature check. Nil disables it.
	Ingest  http.Handler
	Mounts  []Mounter
	Ready   ReadinessCheck
	Logger  *zap.Logger
	Metrics bool
}

// NewRouter builds the service router. /healthz, /metrics and /ingest skip JWT auth.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/ingest"}, nil)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	r.Use(auth.NewMiddleware(opts.JWTSecret, policy, logger).Wrap)

	r.Get("/healthz", healthz(opts.Ready))
	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if opts.Ingest != nil {
		ingestAuth := auth.NewIngestAuthMiddleware(opts.IngestSecret, opts.IngestMaxSkew)
		r.Method(http.MethodPost, "/ingest", ingestAuth.Wrap(opts.Ingest))
	}
	for _, m := range opts.Mounts {
		if m != nil {
			m.Mount(r)
		}
	}
	return r
}

func healthz(ready ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
