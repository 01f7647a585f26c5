package router

import (
	"net/http"

	"go.uber.org/zap"

	"tkgateway/internal/api/handler"
	"tkgateway/internal/api/middleware"
	"tkgateway/internal/core/repository"
	"tkgateway/internal/core/service"
)

// NewRouter returns the device administration API.
func NewRouter(
	deviceService service.DeviceService,
	eventRepo repository.EventRepository,
	logger *zap.Logger,
) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	deviceHandler := handler.NewDeviceHandler(deviceService)
	eventHandler := handler.NewEventHandler(deviceService, eventRepo)

	mux := http.NewServeMux()

	withMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.LoggingMiddleware(logger, h)
	}
	method := func(m string, h http.HandlerFunc) http.Handler {
		return withMiddleware(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != m {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h(w, r)
		})
	}

	mux.Handle("/api/devices", method(http.MethodPost, deviceHandler.Create))
	mux.Handle("/api/devices/list", method(http.MethodGet, deviceHandler.GetDevices))
	mux.Handle("/api/devices/get", method(http.MethodGet, deviceHandler.GetDevice))
	mux.Handle("/api/devices/delete", method(http.MethodDelete, deviceHandler.Delete))

	mux.Handle("/api/events/list", method(http.MethodGet, eventHandler.GetEvents))
	mux.Handle("/api/events/latest", method(http.MethodGet, eventHandler.GetLatestEvent))

	return mux
}
