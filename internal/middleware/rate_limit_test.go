package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	pkghttp "github.com/BradenHooton/tappay/pkg/http"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func requestFrom(remoteAddr string, claims *models.TokenClaims) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/payments/authorize", nil)
	req.RemoteAddr = remoteAddr
	if claims != nil {
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}
	return req
}

func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 3}, nil)(okHandler)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("10.0.0.1:5000", nil))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.1:5000", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "rate_limit_exceeded", resp.Error)

	// another client is unaffected
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.0.2:5000", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitByIP_IgnoresSpoofedForwardedFor(t *testing.T) {
	handler := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1}, pkghttp.NewIPConfig(nil))(okHandler)

	first := requestFrom("10.0.0.3:5000", nil)
	first.Header.Set("X-Forwarded-For", "1.1.1.1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, first)
	require.Equal(t, http.StatusOK, w.Code)

	second := requestFrom("10.0.0.3:5000", nil)
	second.Header.Set("X-Forwarded-For", "2.2.2.2")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, second)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestRateLimitByUser_KeysOnUserID(t *testing.T) {
	handler := RateLimitByUser(RateLimitConfig{RequestsPerMinute: 2}, nil)(okHandler)
	alice := &models.TokenClaims{UserID: "alice", Type: models.TokenTypeAccess}
	bob := &models.TokenClaims{UserID: "bob", Type: models.TokenTypeAccess}

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		// a different IP each time does not reset the user's budget
		handler.ServeHTTP(w, requestFrom(fmt.Sprintf("10.0.1.%d:5000", i+1), alice))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.1.9:5000", alice))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.1.9:5000", bob))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitByUser_FallsBackToIP(t *testing.T) {
	handler := RateLimitByUser(RateLimitConfig{RequestsPerMinute: 1}, nil)(okHandler)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.2.1:5000", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("10.0.2.1:5000", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
