package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/tappay/internal/models"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

// writeServiceError maps service errors onto the JSON error envelope.
// Authorization refusals carry their reason as the error code.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if reason, ok := models.AuthorizationReasonOf(err); ok {
		pkghttp.WriteError(w, authorizationStatus(reason), string(reason), err.Error())
		return
	}

	switch {
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		pkghttp.WriteUnauthorized(w, "Authentication failed")
	case errors.Is(err, models.ErrForbidden):
		pkghttp.WriteForbidden(w, "Forbidden")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "Resource not found")
	case errors.Is(err, models.ErrConflict):
		pkghttp.WriteConflict(w, "Resource already exists")
	case errors.Is(err, models.ErrStoreUnavailable):
		logger.ErrorContext(r.Context(), "store unavailable",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteServiceUnavailable(w, "Service temporarily unavailable, please retry")
	default:
		logger.ErrorContext(r.Context(), "unhandled service error",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func authorizationStatus(reason models.AuthorizationReason) int {
	switch reason {
	case models.ReasonInvalidPIN:
		return http.StatusUnauthorized
	case models.ReasonAccountLocked:
		return http.StatusLocked
	case models.ReasonDailyLimitExceeded:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusForbidden
	}
}
