package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account status values
const (
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
	UserStatusLocked    = "locked"
)

// Roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// DefaultMaxFailedPINAttempts is the failed-verification count that locks an account.
const DefaultMaxFailedPINAttempts = 5

// DefaultDailyLimit applies when a user has no configured daily limit.
var DefaultDailyLimit = decimal.NewFromInt(1000)

type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	PINHash            string // one-way digest, never reversible
	Role               string
	Status             string
	DailyLimit         *decimal.Decimal // nil means "use the configured default"
	FailedAuthAttempts int
	LastFailedAuthAt   *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsActive reports whether the account may authorize payments.
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsLocked reports whether the account has been locked by repeated PIN failures.
func (u *User) IsLocked() bool {
	return u.Status == UserStatusLocked
}

// EffectiveDailyLimit returns the user's limit, or fallback when none is set.
func (u *User) EffectiveDailyLimit(fallback decimal.Decimal) decimal.Decimal {
	if u.DailyLimit == nil {
		return fallback
	}
	return *u.DailyLimit
}
