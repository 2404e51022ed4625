package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
	"fleet-telemetry/internal/observability/metrics"
	tapp "fleet-telemetry/internal/telemetry/application"
	telemetry "fleet-telemetry/internal/telemetry/domain"
)

const maxBodyBytes = 8 << 20

// Handler serves ingest and read-side telemetry endpoints.
type Handler struct {
	ingest *tapp.IngestService
	query  *tapp.QueryService
	logger *zap.Logger
}

// NewHandler constructs a handler.
func NewHandler(ingest *tapp.IngestService, query *tapp.QueryService, logger *zap.Logger) (*Handler, error) {
	if ingest == nil {
		return nil, errors.New("telemetry handler: nil ingest service")
	}
	if query == nil {
		return nil, errors.New("telemetry handler: nil query service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{ingest: ingest, query: query, logger: logger}, nil
}

// IngestHandler returns the device-facing ingest endpoint. It is mounted
// separately because it is authenticated by request signature instead of JWT.
func (h *Handler) IngestHandler() http.Handler {
	return http.HandlerFunc(h.handleIngest)
}

// Mount registers the JWT-protected routes under /api/v1/data.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/v1/data/bulk", h.handleBulk)
	r.Get("/api/v1/data/latest", h.handleLatest)
	r.Get("/api/v1/data/timeseries", h.handleTimeSeries)
	r.Get("/api/v1/data/timeseries.xlsx", h.handleTimeSeriesXLSX)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveIngest("http", result, time.Since(start))
	}()

	var draft telemetry.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		result = metrics.ResultError
		metrics.IncIngestError("decode")
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if _, err := h.ingest.Ingest(r.Context(), draft); err != nil {
		result = metrics.ResultError
		if !errors.Is(err, masterdata.ErrDeviceNotFound) {
			h.logger.Error("ingest failed", zap.String("device_id", draft.DeviceID), zap.Error(err))
		}
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"status":  "success",
		"message": "Data ingested successfully",
	})
}

type bulkRequest struct {
	Readings []telemetry.Draft `json:"readings"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := h.ingest.IngestBulk(r.Context(), auth.CallerFromContext(r.Context()), req.Readings)
	if err != nil {
		h.logger.Warn("bulk ingest failed", zap.Int("created", res.Created), zap.Error(err))
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "success",
		"created": res.Created,
		"errors":  res.Errors,
	})
}

func (h *Handler) handleLatest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	snap, err := h.query.Latest(r.Context(), auth.CallerFromContext(r.Context()), q.Get("factory_id"), q.Get("device_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleTimeSeries(w http.ResponseWriter, r *http.Request) {
	query, err := parseSeriesQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	readings, err := h.query.TimeSeries(r.Context(), auth.CallerFromContext(r.Context()), query)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) handleTimeSeriesXLSX(w http.ResponseWriter, r *http.Request) {
	query, err := parseSeriesQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	readings, err := h.query.TimeSeries(r.Context(), auth.CallerFromContext(r.Context()), query)
	if err != nil {
		respondError(w, err)
		return
	}
	data, err := BuildSeriesXLSX(query.DeviceID, readings)
	if err != nil {
		metrics.IncExport("xlsx", metrics.ResultError)
		h.logger.Error("xlsx export failed", zap.String("device_id", query.DeviceID), zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.IncExport("xlsx", metrics.ResultSuccess)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="timeseries-`+query.DeviceID+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func parseSeriesQuery(r *http.Request) (telemetry.SeriesQuery, error) {
	q := r.URL.Query()
	query := telemetry.SeriesQuery{DeviceID: q.Get("device_id")}
	if query.DeviceID == "" {
		return query, errors.New("device_id is required")
	}
	var err error
	if query.Start, err = parseTime(q.Get("start_time")); err != nil {
		return query, errors.New("invalid start_time")
	}
	if query.End, err = parseTime(q.Get("end_time")); err != nil {
		return query, errors.New("invalid end_time")
	}
	if raw := q.Get("limit"); raw != "" {
		if query.Limit, err = strconv.Atoi(raw); err != nil {
			return query, errors.New("invalid limit")
		}
	}
	return query, nil
}

func parseTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, masterdata.ErrDeviceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, telemetry.ErrInvalidQuery):
		http.Error(w, "invalid query", http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
