package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction status values
const (
	TransactionStatusPending  = "pending"
	TransactionStatusApproved = "approved"
	TransactionStatusDeclined = "declined"
)

// DefaultCurrency is used when a request does not name one.
const DefaultCurrency = "USD"

// Transaction is an immutable record of one authorization attempt that reached scoring.
// A correction is always a new record; rows are never updated.
type Transaction struct {
	ID            string
	UserID        string
	DeviceID      string
	Amount        decimal.Decimal
	Currency      string
	MerchantID    string
	MerchantName  string
	Status        string
	RiskScore     int
	DeclineReason *string // set iff Status == declined
	Signature     string
	CreatedAt     time.Time
}

// IsApproved reports whether the transaction counts toward the daily total.
func (t *Transaction) IsApproved() bool {
	return t.Status == TransactionStatusApproved
}

// TransactionFilter narrows ledger queries. Zero values mean "no constraint".
type TransactionFilter struct {
	Since    *time.Time
	Statuses []string
	Limit    int
}
