package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	"github.com/BradenHooton/tappay/internal/services"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

// defaultEventLookback applies when GET /security-events has no since parameter
const defaultEventLookback = 7 * 24 * time.Hour

type AccountServiceInterface interface {
	Refresh(ctx context.Context, userID string) (*services.AccountSnapshot, error)
	ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error)
	VerifyTransaction(ctx context.Context, userID, transactionID string) (*services.SignatureCheck, error)
	ListSecurityEvents(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error)
}

type PINChanger interface {
	ChangePIN(ctx context.Context, userID, currentPIN, newPIN string) error
}

// AccountHandler serves the signed-in user's own account data
type AccountHandler struct {
	service     AccountServiceInterface
	credentials PINChanger
	logger      *slog.Logger
}

func NewAccountHandler(service AccountServiceInterface, credentials PINChanger, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: service, credentials: credentials, logger: logger}
}

type ChangePINRequest struct {
	CurrentPIN string `json:"current_pin" validate:"required"`
	NewPIN     string `json:"new_pin" validate:"required,pin,nefield=CurrentPIN"`
}

// Refresh handles GET /account/refresh
func (h *AccountHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	snapshot, err := h.service.Refresh(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, newAccountSnapshotResponse(snapshot))
}

// ListTransactions handles GET /transactions?status=approved,declined&since=RFC3339&limit=N
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	query := r.URL.Query()
	var filter models.TransactionFilter

	for _, raw := range query["status"] {
		for _, status := range strings.Split(raw, ",") {
			if status = strings.TrimSpace(strings.ToLower(status)); status != "" {
				filter.Statuses = append(filter.Statuses, status)
			}
		}
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		filter.Since = &since
	}
	limit, ok := parseLimit(w, query.Get("limit"))
	if !ok {
		return
	}
	filter.Limit = limit

	txns, err := h.service.ListTransactions(r.Context(), claims.UserID, filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"transactions": newTransactionResponses(txns)})
}

// VerifyTransaction handles GET /transactions/{id}/verify
func (h *AccountHandler) VerifyTransaction(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	check, err := h.service.VerifyTransaction(r.Context(), claims.UserID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transaction": newTransactionResponse(check.Transaction),
		"valid":       check.Valid,
	})
}

// ListSecurityEvents handles GET /security-events?since=RFC3339&limit=N
func (h *AccountHandler) ListSecurityEvents(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	query := r.URL.Query()
	since := time.Now().Add(-defaultEventLookback)
	if raw := query.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			pkghttp.WriteBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		since = parsed
	}
	limit, ok := parseLimit(w, query.Get("limit"))
	if !ok {
		return
	}

	events, err := h.service.ListSecurityEvents(r.Context(), claims.UserID, since, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{"events": newSecurityEventResponses(events)})
}

// ChangePIN handles PUT /account/pin
func (h *AccountHandler) ChangePIN(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req ChangePINRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.credentials.ChangePIN(r.Context(), claims.UserID, req.CurrentPIN, req.NewPIN); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseLimit returns 0 for an empty value and writes a 400 for a malformed one
func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		pkghttp.WriteBadRequest(w, "limit must be a positive integer")
		return 0, false
	}
	return n, true
}
