package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"tkgateway/internal/core/model"
	"tkgateway/internal/core/repository"
	"tkgateway/internal/core/service"
)

type DeviceHandler struct {
	deviceService service.DeviceService
}

func NewDeviceHandler(deviceService service.DeviceService) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
	}
}

type createDeviceRequest struct {
	AccountID  string   `json:"accountId"`
	DeviceID   string   `json:"deviceId"`
	UniqueID   string   `json:"uniqueId"`
	AllowedIPs []string `json:"allowedIps,omitempty"`
}

func (h *DeviceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	device, err := h.deviceService.RegisterDevice(r.Context(), req.AccountID, req.DeviceID, req.UniqueID, req.AllowedIPs)
	if errors.Is(err, repository.ErrAlreadyExists) {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, device)
}

func (h *DeviceHandler) GetDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceService.GetAllDevices(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// GetDevice looks a device up by registry id, or by modem id when uniqueId
// is given instead.
func (h *DeviceHandler) GetDevice(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	uniqueID := r.URL.Query().Get("uniqueId")
	if id == "" && uniqueID == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	var (
		device *model.Device
		err    error
	)
	if id != "" {
		device, err = h.deviceService.GetDevice(r.Context(), id)
	} else {
		device, err = h.deviceService.GetDeviceByUniqueID(r.Context(), uniqueID)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if device == nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	if err := h.deviceService.DeleteDevice(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
