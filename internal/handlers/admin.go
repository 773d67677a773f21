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

// AdminServiceInterface defines the administrative account operations
type AdminServiceInterface interface {
	UnlockUser(ctx context.Context, adminID, userID string) (*models.User, error)
}

// AdminHandler handles admin HTTP requests. Routes must be wrapped in RequireRole(admin).
type AdminHandler struct {
	service AdminServiceInterface
	logger  *slog.Logger
}

func NewAdminHandler(service AdminServiceInterface, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: service, logger: logger}
}

// UnlockUser handles POST /admin/users/{id}/unlock
func (h *AdminHandler) UnlockUser(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		pkghttp.WriteBadRequest(w, "user id is required")
		return
	}

	user, err := h.service.UnlockUser(r.Context(), claims.UserID, userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newUserResponse(user))
}
