package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types for the security audit trail
const (
	EventTypeInvalidPIN           = "invalid_pin"
	EventTypeAccountLocked        = "account_locked"
	EventTypeAccountUnlocked      = "account_unlocked"
	EventTypeTransactionProcessed = "transaction_processed"
	EventTypeDeviceRegistered     = "device_registered"
	EventTypeDeviceDeactivated    = "device_deactivated"
	EventTypePINChanged           = "pin_changed"
	EventTypeUserRegistered       = "user_registered"
)

// Severity levels
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// SecurityEvent is an append-only audit record. UserID is nullable because the
// referenced user may not exist (or may later be removed out of band).
type SecurityEvent struct {
	ID          uuid.UUID     `db:"id"`
	UserID      *string       `db:"user_id"`
	EventType   string        `db:"event_type"`
	Severity    string        `db:"severity"`
	Description string        `db:"description"`
	Metadata    EventMetadata `db:"metadata"`
	CreatedAt   time.Time     `db:"created_at"`
}

// EventMetadata holds structured context for a security event
type EventMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (m *EventMetadata) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*m = make(EventMetadata)
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}

	decoded := make(map[string]interface{})
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*m = EventMetadata(decoded)
	return nil
}

// Value implements driver.Valuer for JSONB
func (m EventMetadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(m))
}

// NewTransactionEventMetadata builds the metadata attached to transaction_processed events.
func NewTransactionEventMetadata(txn *Transaction, triggeredRules []string) EventMetadata {
	metadata := EventMetadata{
		"transaction_id":  txn.ID,
		"device_id":       txn.DeviceID,
		"amount":          txn.Amount.StringFixed(2),
		"currency":        txn.Currency,
		"merchant_id":     txn.MerchantID,
		"status":          txn.Status,
		"risk_score":      txn.RiskScore,
		"triggered_rules": triggeredRules,
	}
	if txn.DeclineReason != nil {
		metadata["decline_reason"] = *txn.DeclineReason
	}
	return metadata
}
