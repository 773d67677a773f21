package models

import "github.com/golang-jwt/jwt/v5"

// TokenTypeAccess is the only token type this service issues
const TokenTypeAccess = "access"

// TokenClaims is the JWT payload for API access. UserID is the only
// identity the payment pipeline trusts.
type TokenClaims struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}
