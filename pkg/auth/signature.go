package auth

import (
	"crypto/subtle"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SignatureTimeFormat is the timestamp layout inside the signed payload
const SignatureTimeFormat = time.RFC3339Nano

// SignaturePayload builds "userId|amount|merchantId|timestamp" with a two-decimal
// amount and a UTC timestamp, so the same inputs always produce the same bytes.
func SignaturePayload(userID string, amount decimal.Decimal, merchantID string, ts time.Time) string {
	return strings.Join([]string{
		userID,
		amount.StringFixed(2),
		merchantID,
		ts.UTC().Format(SignatureTimeFormat),
	}, "|")
}

// SignTransaction returns the hex SHA-256 of the payload.
// This is an integrity checksum, not a MAC: anyone who knows the fields can recompute it.
func SignTransaction(userID string, amount decimal.Decimal, merchantID string, ts time.Time) string {
	return sha256Hex(SignaturePayload(userID, amount, merchantID, ts))
}

// VerifyTransactionSignature recomputes the signature and compares in constant time
func VerifyTransactionSignature(signature, userID string, amount decimal.Decimal, merchantID string, ts time.Time) bool {
	expected := SignTransaction(userID, amount, merchantID, ts)
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(signature)), []byte(expected)) == 1
}
