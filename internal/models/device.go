package models

import "time"

// Device is a physical tap-to-pay device bound to exactly one user.
// DeviceIdentifier is globally unique; the first registrant owns it forever.
type Device struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	DeviceIdentifier string     `json:"device_identifier"`
	Name             string     `json:"name"`
	IsActive         bool       `json:"is_active"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// IsOwnedBy checks the device owner
func (d *Device) IsOwnedBy(userID string) bool {
	return d.UserID == userID
}
