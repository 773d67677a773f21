package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrStoreUnavailable wraps I/O failures from a collaborator store
	ErrStoreUnavailable = errors.New("store unavailable")
)

// AuthorizationReason identifies why a payment authorization was refused
type AuthorizationReason string

const (
	ReasonInvalidPIN         AuthorizationReason = "invalid_pin"
	ReasonAccountInactive    AuthorizationReason = "account_inactive"
	ReasonAccountLocked      AuthorizationReason = "account_locked"
	ReasonDeviceNotOwned     AuthorizationReason = "device_not_owned"
	ReasonDeviceInactive     AuthorizationReason = "device_inactive"
	ReasonDailyLimitExceeded AuthorizationReason = "daily_limit_exceeded"
)

// AuthorizationError is a terminal, user-visible refusal from the authorization pipeline.
// No transaction is persisted when one of these is returned.
type AuthorizationError struct {
	Reason  AuthorizationReason
	Message string
}

func (e *AuthorizationError) Error() string {
	return e.Message
}

// Is matches on Reason. A locked account also matches ErrAccountInactive.
func (e *AuthorizationError) Is(target error) bool {
	t, ok := target.(*AuthorizationError)
	if !ok {
		return false
	}
	if t.Reason == e.Reason {
		return true
	}
	return e.Reason == ReasonAccountLocked && t.Reason == ReasonAccountInactive
}

var (
	ErrInvalidPIN         = &AuthorizationError{Reason: ReasonInvalidPIN, Message: "invalid PIN"}
	ErrAccountInactive    = &AuthorizationError{Reason: ReasonAccountInactive, Message: "account is not active"}
	ErrAccountLocked      = &AuthorizationError{Reason: ReasonAccountLocked, Message: "account is locked"}
	ErrDeviceNotOwned     = &AuthorizationError{Reason: ReasonDeviceNotOwned, Message: "device is registered to another user"}
	ErrDeviceInactive     = &AuthorizationError{Reason: ReasonDeviceInactive, Message: "device is deactivated"}
	ErrDailyLimitExceeded = &AuthorizationError{Reason: ReasonDailyLimitExceeded, Message: "daily spending limit exceeded"}
)

// AuthorizationReasonOf extracts the refusal reason from err, if any
func AuthorizationReasonOf(err error) (AuthorizationReason, bool) {
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		return authErr.Reason, true
	}
	return "", false
}
