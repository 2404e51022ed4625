package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fleet-telemetry/internal/auth"
	mdapp "fleet-telemetry/internal/masterdata/application"
	masterdata "fleet-telemetry/internal/masterdata/domain"
)

const maxBodyBytes = 4 << 20

// Handler provides device registry endpoints.
type Handler struct {
	service *mdapp.DeviceService
}

// NewHandler constructs a handler.
func NewHandler(service *mdapp.DeviceService) (*Handler, error) {
	if service == nil {
		return nil, errors.New("devices handler: nil service")
	}
	return &Handler{service: service}, nil
}

// Mount registers routes under /api/v1/devices.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/api/v1/devices/register", h.handleRegister)
	r.Post("/api/v1/devices/bulk", h.handleBulk)
	r.Get("/api/v1/devices", h.handleList)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input mdapp.RegisterDevice
	if err := decodeJSON(w, r, &input); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	device, err := h.service.Register(r.Context(), auth.CallerFromContext(r.Context()), input)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

type bulkRequest struct {
	Devices []mdapp.RegisterDevice `json:"devices"`
}

func (h *Handler) handleBulk(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	res, err := h.service.RegisterBulk(r.Context(), auth.CallerFromContext(r.Context()), req.Devices)
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	devices, err := h.service.List(r.Context(), auth.CallerFromContext(r.Context()), r.URL.Query().Get("factory_id"))
	if err != nil {
		respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, masterdata.ErrFactoryNotFound), errors.Is(err, masterdata.ErrDeviceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, masterdata.ErrDeviceExists):
		http.Error(w, "device with this id already exists", http.StatusBadRequest)
	default:
		if mdapp.IsValidation(err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
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
