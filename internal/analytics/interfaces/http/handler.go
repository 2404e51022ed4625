package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	aapp "fleet-telemetry/internal/analytics/application"
	analytics "fleet-telemetry/internal/analytics/domain"
	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
)

// Handler serves insight and device liveness endpoints.
type Handler struct {
	insights *aapp.InsightService
	liveness *aapp.LivenessService
	logger   *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(insights *aapp.InsightService, liveness *aapp.LivenessService, logger *zap.Logger) (*Handler, error) {
	if insights == nil {
		return nil, errors.New("analytics handler: nil insight service")
	}
	if liveness == nil {
		return nil, errors.New("analytics handler: nil liveness service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{insights: insights, liveness: liveness, logger: logger}, nil
}

// Mount registers routes.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/v1/insights", h.handleInsight)
	r.Get("/api/v1/insights/report.pdf", h.handleReport)
	r.Get("/api/v1/devices/{id}/status", h.handleDeviceStatus)
}

func (h *Handler) handleInsight(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	insight, err := h.insights.Insight(r.Context(), auth.CallerFromContext(r.Context()), q.Get("factory_id"), q.Get("period"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insight)
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	insight, err := h.insights.Insight(r.Context(), auth.CallerFromContext(r.Context()), q.Get("factory_id"), q.Get("period"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	data, err := BuildInsightPDF(insight)
	if err != nil {
		metrics.IncExport("pdf", metrics.ResultError)
		h.logger.Error("insight report failed", zap.String("factory_id", insight.FactoryID), zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.IncExport("pdf", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="insight-`+insight.FactoryID+`-`+insight.Period+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.liveness.DeviceStatus(r.Context(), auth.CallerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analytics.ErrTenantRequired):
		http.Error(w, "Factory ID required", http.StatusBadRequest)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, masterdata.ErrDeviceNotFound):
		http.Error(w, "Device not found", http.StatusNotFound)
	default:
		h.logger.Error("analytics request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
