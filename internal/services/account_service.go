package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/models"
	pkgauth "github.com/BradenHooton/tappay/pkg/auth"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	refreshEventWindow  = 24 * time.Hour
)

// AccountSnapshot is everything a client needs to redraw its account view
type AccountSnapshot struct {
	User               *models.User
	DailyLimit         decimal.Decimal
	ApprovedToday      decimal.Decimal
	RemainingToday     decimal.Decimal
	Devices            []*models.Device
	RecentTransactions []*models.Transaction
	RecentEvents       []*models.SecurityEvent
	AsOf               time.Time
}

// SignatureCheck is the result of re-deriving a transaction signature
type SignatureCheck struct {
	Transaction *models.Transaction
	Valid       bool
}

// AccountService serves read paths over the ledger, devices and audit trail
type AccountService struct {
	users             UserRepository
	devices           DeviceRepository
	ledger            TransactionRepository
	events            *SecurityEventService
	defaultDailyLimit decimal.Decimal
	historyLimit      int
	location          *time.Location
	logger            *slog.Logger
	now               func() time.Time
}

func NewAccountService(users UserRepository, devices DeviceRepository, ledger TransactionRepository, events *SecurityEventService, defaultDailyLimit decimal.Decimal, historyLimit int, logger *slog.Logger) *AccountService {
	if historyLimit <= 0 || historyLimit > maxHistoryLimit {
		historyLimit = defaultHistoryLimit
	}
	return &AccountService{
		users:             users,
		devices:           devices,
		ledger:            ledger,
		events:            events,
		defaultDailyLimit: defaultDailyLimit,
		historyLimit:      historyLimit,
		location:          time.Local,
		logger:            logger,
		now:               time.Now,
	}
}

// Refresh returns a fresh snapshot of the user's account
func (s *AccountService) Refresh(ctx context.Context, userID string) (*AccountSnapshot, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get user", err)
	}

	now := s.now()
	approved, err := s.ledger.SumApprovedSince(ctx, userID, StartOfDay(now, s.location))
	if err != nil {
		return nil, storeError("sum approved today", err)
	}

	devices, err := s.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list devices", err)
	}

	txns, err := s.ledger.FindByUser(ctx, userID, models.TransactionFilter{Limit: 10})
	if err != nil {
		return nil, storeError("recent transactions", err)
	}

	events, err := s.events.ListForUser(ctx, userID, now.Add(-refreshEventWindow), 20)
	if err != nil {
		return nil, err
	}

	limit := user.EffectiveDailyLimit(s.defaultDailyLimit)
	remaining := limit.Sub(approved)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return &AccountSnapshot{
		User:               user,
		DailyLimit:         limit,
		ApprovedToday:      approved,
		RemainingToday:     remaining,
		Devices:            devices,
		RecentTransactions: txns,
		RecentEvents:       events,
		AsOf:               now,
	}, nil
}

// ListTransactions returns the user's ledger entries narrowed by filter
func (s *AccountService) ListTransactions(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	for _, status := range filter.Statuses {
		switch status {
		case models.TransactionStatusApproved, models.TransactionStatusPending, models.TransactionStatusDeclined:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", models.ErrBadRequest, status)
		}
	}
	if filter.Limit <= 0 || filter.Limit > maxHistoryLimit {
		filter.Limit = s.historyLimit
	}

	txns, err := s.ledger.FindByUser(ctx, userID, filter)
	if err != nil {
		return nil, storeError("list transactions", err)
	}
	return txns, nil
}

// VerifyTransaction recomputes the signature of one of the user's transactions.
// Another user's transaction is reported as not found.
func (s *AccountService) VerifyTransaction(ctx context.Context, userID, transactionID string) (*SignatureCheck, error) {
	txn, err := s.ledger.GetByID(ctx, transactionID)
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get transaction", err)
	}
	if txn.UserID != userID {
		return nil, models.ErrNotFound
	}

	valid := pkgauth.VerifyTransactionSignature(txn.Signature, txn.UserID, txn.Amount, txn.MerchantID, txn.CreatedAt)
	if !valid {
		s.logger.WarnContext(ctx, "transaction signature mismatch",
			slog.String("transaction_id", txn.ID),
			slog.String("user_id", userID),
		)
	}
	return &SignatureCheck{Transaction: txn, Valid: valid}, nil
}

// ListSecurityEvents returns the user's audit trail since the given time
func (s *AccountService) ListSecurityEvents(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = s.historyLimit
	}
	return s.events.ListForUser(ctx, userID, since, limit)
}
