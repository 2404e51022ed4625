package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	alertapp "fleet-telemetry/internal/alerts/application"
	alerts "fleet-telemetry/internal/alerts/domain"
	"fleet-telemetry/internal/auth"
	masterdata "fleet-telemetry/internal/masterdata/domain"
)

const maxBodyBytes = 4 << 20

// Handler provides alert HTTP endpoints.
type Handler struct {
	service *alertapp.Service
	broker  *SSEBroker
	logger  *zap.Logger
}

// NewHandler constructs a handler. broker may be nil when streaming is disabled.
func NewHandler(service *alertapp.Service, broker *SSEBroker, logger *zap.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alerts handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, broker: broker, logger: logger}, nil
}

// Mount registers routes under /api/v1/alerts.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/api/v1/alerts", h.handleList)
	r.Post("/api/v1/alerts", h.handleCreate)
	r.Post("/api/v1/alerts/bulk", h.handleBulk)
	r.Post("/api/v1/alerts/{id}/acknowledge", h.handleAcknowledge)
	r.Post("/api/v1/alerts/{id}/resolve", h.handleResolve)
	if h.broker != nil {
		r.Method(http.MethodGet, "/api/v1/alerts/stream", h.broker)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	list, err := h.service.List(r.Context(), auth.CallerFromContext(r.Context()), query.Get("factory_id"), query.Get("status"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var draft alerts.Draft
	if err := decodeJSON(w, r, &draft); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	alert, err := h.service.Create(r.Context(), auth.CallerFromContext(r.Context()), draft)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

type bulkRequest struct {
	Alerts []alerts.Draft `json:"alerts"`
}

type bulkResponse struct {
	Status  string   `json:"status"`
	Created int      `json:"created"`
	Errors  []string `json:"errors"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := h.service.CreateBulk(r.Context(), auth.CallerFromContext(r.Context()), req.Alerts)
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bulkResponse{Status: "success", Created: res.Created, Errors: res.Errors})
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.Acknowledge(r.Context(), auth.CallerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	alert, err := h.service.Resolve(r.Context(), auth.CallerFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, alerts.ErrNotFound):
		http.Error(w, "alert not found", http.StatusNotFound)
	case errors.Is(err, masterdata.ErrDeviceNotFound), errors.Is(err, masterdata.ErrFactoryNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, alerts.ErrInvalidTransition):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("alert request failed", zap.Error(err))
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
