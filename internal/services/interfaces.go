package services

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/models"
)

// UserRepository is the credential store
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	RecordFailedPIN(ctx context.Context, id string, at time.Time) (int, error)
	ResetFailedPIN(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string) error
	UpdatePINHash(ctx context.Context, id, pinHash string) error
	Unlock(ctx context.Context, id string) (*models.User, error)
}

// DeviceRepository is the device registry
type DeviceRepository interface {
	FindByIdentifier(ctx context.Context, identifier string) (*models.Device, error)
	GetByID(ctx context.Context, id string) (*models.Device, error)
	Create(ctx context.Context, device *models.Device) (*models.Device, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Device, error)
	SetActive(ctx context.Context, id string, active bool) error
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// TransactionRepository is the append-only ledger
type TransactionRepository interface {
	Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error)
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	FindByUser(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error)
	SumApprovedSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
}

// SecurityEventRepository is the audit log
type SecurityEventRepository interface {
	Create(ctx context.Context, event *models.SecurityEvent) error
	FindByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error)
}

// EventPublisher sends domain events to the message broker
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// OpsReporter receives operational failures that must not reach the caller
type OpsReporter interface {
	Report(ctx context.Context, component, operation string, err error, fields map[string]string)
}

// AlertNotifier delivers out-of-band security alerts
type AlertNotifier interface {
	NotifyAccountLocked(ctx context.Context, user *models.User, attempts int) error
}

// UserLocker serializes work per user. The returned unlock func must be called exactly once.
type UserLocker interface {
	Lock(ctx context.Context, userID string) (unlock func(), err error)
}

// LeasedLocker is a UserLocker whose hold expires on its own after Lease
type LeasedLocker interface {
	UserLocker
	Lease() time.Duration
}

type noopOpsReporter struct{}

func (noopOpsReporter) Report(context.Context, string, string, error, map[string]string) {}

type noopAlertNotifier struct{}

func (noopAlertNotifier) NotifyAccountLocked(context.Context, *models.User, int) error { return nil }

// storeError tags a collaborator failure as models.ErrStoreUnavailable, keeping the cause
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, models.ErrStoreUnavailable, err)
}
