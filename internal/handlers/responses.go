package handlers

import (
	"time"

	"github.com/BradenHooton/tappay/internal/models"
	"github.com/BradenHooton/tappay/internal/services"
)

// UserResponse is the public view of a user. Credential digests never leave the service.
type UserResponse struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	Role              string    `json:"role"`
	Status            string    `json:"status"`
	DailyLimit        *string   `json:"daily_limit,omitempty"`
	FailedPINAttempts int       `json:"failed_pin_attempts"`
	CreatedAt         time.Time `json:"created_at"`
}

func newUserResponse(u *models.User) *UserResponse {
	resp := &UserResponse{
		ID:                u.ID,
		Email:             u.Email,
		Role:              u.Role,
		Status:            u.Status,
		FailedPINAttempts: u.FailedAuthAttempts,
		CreatedAt:         u.CreatedAt,
	}
	if u.DailyLimit != nil {
		limit := u.DailyLimit.StringFixed(2)
		resp.DailyLimit = &limit
	}
	return resp
}

type AuthTokenResponse struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresAt   time.Time     `json:"expires_at"`
	User        *UserResponse `json:"user"`
}

func newAuthTokenResponse(resp *services.AuthResponse) *AuthTokenResponse {
	out := &AuthTokenResponse{
		AccessToken: resp.AccessToken,
		TokenType:   resp.TokenType,
		ExpiresAt:   resp.ExpiresAt,
	}
	if resp.User != nil {
		out.User = newUserResponse(resp.User)
	}
	return out
}

// TransactionResponse renders amounts as fixed two-decimal strings
type TransactionResponse struct {
	ID            string    `json:"id"`
	DeviceID      string    `json:"device_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	MerchantID    string    `json:"merchant_id"`
	MerchantName  string    `json:"merchant_name"`
	Status        string    `json:"status"`
	RiskScore     int       `json:"risk_score"`
	DeclineReason *string   `json:"decline_reason,omitempty"`
	Signature     string    `json:"signature"`
	CreatedAt     time.Time `json:"created_at"`
}

func newTransactionResponse(t *models.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            t.ID,
		DeviceID:      t.DeviceID,
		Amount:        t.Amount.StringFixed(2),
		Currency:      t.Currency,
		MerchantID:    t.MerchantID,
		MerchantName:  t.MerchantName,
		Status:        t.Status,
		RiskScore:     t.RiskScore,
		DeclineReason: t.DeclineReason,
		Signature:     t.Signature,
		CreatedAt:     t.CreatedAt,
	}
}

func newTransactionResponses(txns []*models.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, newTransactionResponse(t))
	}
	return out
}

type SecurityEventResponse struct {
	ID          string               `json:"id"`
	EventType   string               `json:"event_type"`
	Severity    string               `json:"severity"`
	Description string               `json:"description"`
	Metadata    models.EventMetadata `json:"metadata"`
	CreatedAt   time.Time            `json:"created_at"`
}

func newSecurityEventResponses(events []*models.SecurityEvent) []SecurityEventResponse {
	out := make([]SecurityEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, SecurityEventResponse{
			ID:          e.ID.String(),
			EventType:   e.EventType,
			Severity:    e.Severity,
			Description: e.Description,
			Metadata:    e.Metadata,
			CreatedAt:   e.CreatedAt,
		})
	}
	return out
}

type AccountSnapshotResponse struct {
	User               *UserResponse           `json:"user"`
	DailyLimit         string                  `json:"daily_limit"`
	ApprovedToday      string                  `json:"approved_today"`
	RemainingToday     string                  `json:"remaining_today"`
	Devices            []*models.Device        `json:"devices"`
	RecentTransactions []TransactionResponse   `json:"recent_transactions"`
	RecentEvents       []SecurityEventResponse `json:"recent_events"`
	AsOf               time.Time               `json:"as_of"`
}

func newAccountSnapshotResponse(s *services.AccountSnapshot) *AccountSnapshotResponse {
	devices := s.Devices
	if devices == nil {
		devices = []*models.Device{}
	}
	return &AccountSnapshotResponse{
		User:               newUserResponse(s.User),
		DailyLimit:         s.DailyLimit.StringFixed(2),
		ApprovedToday:      s.ApprovedToday.StringFixed(2),
		RemainingToday:     s.RemainingToday.StringFixed(2),
		Devices:            devices,
		RecentTransactions: newTransactionResponses(s.RecentTransactions),
		RecentEvents:       newSecurityEventResponses(s.RecentEvents),
		AsOf:               s.AsOf,
	}
}
