package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	"github.com/BradenHooton/tappay/internal/services"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRequest creates an HTTP request with JSON body for testing
func newTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withClaims adds verified claims to the request context
func withClaims(req *http.Request, userID, role string) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), &models.TokenClaims{
		Type:   models.TokenTypeAccess,
		UserID: userID,
		Role:   role,
	}))
}

// withChiParams adds chi URL parameters to the request context
func withChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// assertErrorResponse checks that response is a valid error response
func assertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

type mockAuthService struct {
	RegisterFunc func(ctx context.Context, email, password, pin string) (*services.AuthResponse, error)
	LoginFunc    func(ctx context.Context, email, password string) (*services.AuthResponse, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, pin string) (*services.AuthResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrConflict
	}
	return m.RegisterFunc(ctx, email, password, pin)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*services.AuthResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrUnauthorized
	}
	return m.LoginFunc(ctx, email, password)
}

type mockAuthorizationService struct {
	AuthorizeFunc func(ctx context.Context, req services.AuthorizeRequest) (*models.Transaction, error)
}

func (m *mockAuthorizationService) Authorize(ctx context.Context, req services.AuthorizeRequest) (*models.Transaction, error) {
	if m.AuthorizeFunc == nil {
		return nil, models.ErrInvalidPIN
	}
	return m.AuthorizeFunc(ctx, req)
}

type mockDeviceService struct {
	ListFunc       func(ctx context.Context, userID string) ([]*models.Device, error)
	DeactivateFunc func(ctx context.Context, userID, deviceID string) (*models.Device, error)
}

func (m *mockDeviceService) List(ctx context.Context, userID string) ([]*models.Device, error) {
	if m.ListFunc == nil {
		return []*models.Device{}, nil
	}
	return m.ListFunc(ctx, userID)
}

func (m *mockDeviceService) Deactivate(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	if m.DeactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.DeactivateFunc(ctx, userID, deviceID)
}

type mockAccountService struct {
	RefreshFunc            func(ctx context.Context, userID string) (*services.AccountSnapshot, error)
	ListTransactionsFunc   func(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error)
	VerifyTransactionFunc  func(ctx context.Context, userID, transactionID string) (*services.SignatureCheck, error)
	ListSecurityEventsFunc func(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error)
	ChangePINFunc          func(ctx context.Context, userID, currentPIN, newPIN string) error
}

func (m *mockAccountService) Refresh(ctx context.Context, userID string) (*services.AccountSnapshot, error) {
	if m.RefreshFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RefreshFunc(ctx, userID)
}

func (m *mockAccountService) ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	if m.ListTransactionsFunc == nil {
		return []*models.Transaction{}, nil
	}
	return m.ListTransactionsFunc(ctx, userID, filter)
}

func (m *mockAccountService) VerifyTransaction(ctx context.Context, userID, transactionID string) (*services.SignatureCheck, error) {
	if m.VerifyTransactionFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.VerifyTransactionFunc(ctx, userID, transactionID)
}

func (m *mockAccountService) ListSecurityEvents(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	if m.ListSecurityEventsFunc == nil {
		return []*models.SecurityEvent{}, nil
	}
	return m.ListSecurityEventsFunc(ctx, userID, since, limit)
}

func (m *mockAccountService) ChangePIN(ctx context.Context, userID, currentPIN, newPIN string) error {
	if m.ChangePINFunc == nil {
		return nil
	}
	return m.ChangePINFunc(ctx, userID, currentPIN, newPIN)
}

type mockAdminService struct {
	UnlockUserFunc func(ctx context.Context, adminID, userID string) (*models.User, error)
}

func (m *mockAdminService) UnlockUser(ctx context.Context, adminID, userID string) (*models.User, error) {
	if m.UnlockUserFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UnlockUserFunc(ctx, adminID, userID)
}

type stubPinger struct{ err error }

func (p stubPinger) HealthCheck(ctx context.Context) error { return p.err }
