package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

type DeviceServiceInterface interface {
	List(ctx context.Context, userID string) ([]*models.Device, error)
	Deactivate(ctx context.Context, userID, deviceID string) (*models.Device, error)
}

type DeviceHandler struct {
	service DeviceServiceInterface
	logger  *slog.Logger
}

func NewDeviceHandler(service DeviceServiceInterface, logger *slog.Logger) *DeviceHandler {
	return &DeviceHandler{service: service, logger: logger}
}

// List handles GET /devices
func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	devices, err := h.service.List(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"devices": devices})
}

// Deactivate handles DELETE /devices/{id}
func (h *DeviceHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		pkghttp.WriteBadRequest(w, "device id is required")
		return
	}

	device, err := h.service.Deactivate(r.Context(), claims.UserID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, device)
}
