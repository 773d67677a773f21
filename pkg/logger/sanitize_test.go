package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizedEmail(t *testing.T) {
	assert.Equal(t, "a****@*******.com", SanitizedEmail("alice@example.com"))
	assert.Equal(t, "b@****.io", SanitizedEmail("b@host.io"))
	assert.Equal(t, "[invalid-email]", SanitizedEmail("not-an-email"))
}

func TestMaskIdentifier(t *testing.T) {
	assert.Equal(t, "********5678", MaskIdentifier("ABCD-EF-5678"))
	assert.Equal(t, "***", MaskIdentifier("abc"))
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("pin", "1234", "production").Value.String())
	assert.Equal(t, "1234", RedactedAttr("pin", "1234", "development").Value.String())
}

func TestSanitizeQueryString(t *testing.T) {
	assert.True(t, SanitizeQueryString("pin=1234"))
	assert.True(t, SanitizeQueryString("Token=abc"))
	assert.False(t, SanitizeQueryString("since=2026-01-01T00:00:00Z"))
	assert.False(t, SanitizeQueryString(""))
}

func TestAuditLogger_LevelFollowsSuccess(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	al.LogAuthAttempt(context.Background(), AuditEvent{EventType: "login", UserID: "u1", Success: false, FailureReason: "invalid_credentials"})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "auth", line["audit_type"])
	assert.Equal(t, "audit", line["log_stream"])
	assert.Equal(t, "invalid_credentials", line["failure_reason"])
}
