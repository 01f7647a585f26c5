package handler

import (
	"net/http"
	"strconv"

	"tkgateway/internal/core/repository"
	"tkgateway/internal/core/service"
)

const defaultEventLimit = 100

type EventHandler struct {
	deviceService service.DeviceService
	eventRepo     repository.EventRepository
}

func NewEventHandler(deviceService service.DeviceService, eventRepo repository.EventRepository) *EventHandler {
	return &EventHandler{
		deviceService: deviceService,
		eventRepo:     eventRepo,
	}
}

// GetEvents lists the newest stored events of a device, oldest first.
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	device, err := h.deviceService.GetDevice(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if device == nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	events, err := h.eventRepo.FindByDevice(r.Context(), device.AccountID, device.DeviceID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *EventHandler) GetLatestEvent(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Device ID required", http.StatusBadRequest)
		return
	}

	device, err := h.deviceService.GetDevice(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if device == nil {
		http.Error(w, "Device not found", http.StatusNotFound)
		return
	}

	event, err := h.eventRepo.FindLatestByDevice(r.Context(), device.AccountID, device.DeviceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if event == nil {
		http.Error(w, "No event found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
