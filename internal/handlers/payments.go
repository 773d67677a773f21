package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	"github.com/BradenHooton/tappay/internal/services"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

type AuthorizationServiceInterface interface {
	Authorize(ctx context.Context, req services.AuthorizeRequest) (*models.Transaction, error)
}

// PaymentHandler exposes the tap-to-pay authorization endpoint
type PaymentHandler struct {
	service AuthorizationServiceInterface
	logger  *slog.Logger
}

func NewPaymentHandler(service AuthorizationServiceInterface, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// AuthorizePaymentRequest carries no user id; the payer is taken from the access token
type AuthorizePaymentRequest struct {
	DeviceIdentifier string          `json:"device_identifier" validate:"required,max=255"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" validate:"omitempty,len=3,alpha"`
	MerchantID       string          `json:"merchant_id" validate:"required,max=100"`
	MerchantName     string          `json:"merchant_name" validate:"max=255"`
	PIN              string          `json:"pin" validate:"required,pin"`
}

// Authorize handles POST /payments/authorize. Approved, pending and declined
// outcomes are all 201: each one is a new ledger record.
func (h *PaymentHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	var req AuthorizePaymentRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	txn, err := h.service.Authorize(r.Context(), services.AuthorizeRequest{
		UserID:           claims.UserID,
		DeviceIdentifier: req.DeviceIdentifier,
		Amount:           req.Amount,
		Currency:         req.Currency,
		MerchantID:       req.MerchantID,
		MerchantName:     req.MerchantName,
		PIN:              req.PIN,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, newTransactionResponse(txn))
}
