package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/models"
	"github.com/BradenHooton/tappay/internal/risk"
	pkgauth "github.com/BradenHooton/tappay/pkg/auth"
)

// maxAmount is the largest value a NUMERIC(12,2) column holds
var maxAmount = decimal.RequireFromString("9999999999.99")

// column widths of devices.device_identifier, transactions.merchant_id and transactions.merchant_name
const (
	maxDeviceIdentifierLen = 255
	maxMerchantIDLen       = 100
	maxMerchantNameLen     = 255
)

// AuthorizeRequest is one tap-to-pay attempt. UserID must come from verified
// credentials, never from the request body.
type AuthorizeRequest struct {
	UserID           string
	DeviceIdentifier string
	Amount           decimal.Decimal
	Currency         string
	MerchantID       string
	MerchantName     string
	PIN              string
}

func (r *AuthorizeRequest) normalize() error {
	r.DeviceIdentifier = strings.TrimSpace(r.DeviceIdentifier)
	r.MerchantID = strings.TrimSpace(r.MerchantID)
	r.MerchantName = strings.TrimSpace(r.MerchantName)
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if r.Currency == "" {
		r.Currency = models.DefaultCurrency
	}

	switch {
	case r.UserID == "":
		return fmt.Errorf("%w: user is required", models.ErrBadRequest)
	case r.DeviceIdentifier == "":
		return fmt.Errorf("%w: device identifier is required", models.ErrBadRequest)
	case r.MerchantID == "":
		return fmt.Errorf("%w: merchant id is required", models.ErrBadRequest)
	case utf8.RuneCountInString(r.DeviceIdentifier) > maxDeviceIdentifierLen:
		return fmt.Errorf("%w: device identifier must be at most %d characters", models.ErrBadRequest, maxDeviceIdentifierLen)
	case utf8.RuneCountInString(r.MerchantID) > maxMerchantIDLen:
		return fmt.Errorf("%w: merchant id must be at most %d characters", models.ErrBadRequest, maxMerchantIDLen)
	case utf8.RuneCountInString(r.MerchantName) > maxMerchantNameLen:
		return fmt.Errorf("%w: merchant name must be at most %d characters", models.ErrBadRequest, maxMerchantNameLen)
	case !r.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", models.ErrBadRequest)
	case r.Amount.GreaterThan(maxAmount):
		return fmt.Errorf("%w: amount too large", models.ErrBadRequest)
	case !r.Amount.Equal(r.Amount.Round(2)):
		return fmt.Errorf("%w: amount has more than two decimal places", models.ErrBadRequest)
	case len(r.Currency) != 3:
		return fmt.Errorf("%w: currency must be a 3-letter code", models.ErrBadRequest)
	}
	if r.MerchantName == "" {
		r.MerchantName = r.MerchantID
	}
	return nil
}

// TransactionEvent is published for every persisted transaction
type TransactionEvent struct {
	TransactionID string    `json:"transaction_id"`
	UserID        string    `json:"user_id"`
	DeviceID      string    `json:"device_id"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	MerchantID    string    `json:"merchant_id"`
	Status        string    `json:"status"`
	RiskScore     int       `json:"risk_score"`
	DeclineReason *string   `json:"decline_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// AuthorizationService runs the payment pipeline:
// PIN, account status, device, daily limit, risk, status, persist, audit.
type AuthorizationService struct {
	users             UserRepository
	credentials       *CredentialService
	devices           *DeviceService
	ledger            TransactionRepository
	events            *SecurityEventService
	engine            *risk.Engine
	locker            UserLocker
	publisher         EventPublisher
	ops               OpsReporter
	exchange          string
	publishTimeout    time.Duration
	defaultDailyLimit decimal.Decimal
	lockTimeout       time.Duration
	location          *time.Location
	logger            *slog.Logger
	now               func() time.Time
}

type AuthorizationServiceDeps struct {
	Users             UserRepository
	Credentials       *CredentialService
	Devices           *DeviceService
	Ledger            TransactionRepository
	Events            *SecurityEventService
	Engine            *risk.Engine
	Locker            UserLocker
	Publisher         EventPublisher
	Ops               OpsReporter
	Exchange          string
	PublishTimeout    time.Duration
	DefaultDailyLimit decimal.Decimal
	LockTimeout       time.Duration
	Location          *time.Location
	Logger            *slog.Logger
}

func NewAuthorizationService(deps AuthorizationServiceDeps) *AuthorizationService {
	s := &AuthorizationService{
		users:             deps.Users,
		credentials:       deps.Credentials,
		devices:           deps.Devices,
		ledger:            deps.Ledger,
		events:            deps.Events,
		engine:            deps.Engine,
		locker:            deps.Locker,
		publisher:         deps.Publisher,
		ops:               deps.Ops,
		exchange:          deps.Exchange,
		publishTimeout:    deps.PublishTimeout,
		defaultDailyLimit: deps.DefaultDailyLimit,
		lockTimeout:       deps.LockTimeout,
		location:          deps.Location,
		logger:            deps.Logger,
		now:               time.Now,
	}
	if s.engine == nil {
		s.engine = risk.NewEngine(risk.DefaultConfig())
	}
	if s.locker == nil {
		s.locker = NewLocalUserLocker()
	}
	if s.ops == nil {
		s.ops = noopOpsReporter{}
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.exchange == "" {
		s.exchange = "payment_events"
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = 3 * time.Second
	}
	if s.defaultDailyLimit.IsZero() {
		s.defaultDailyLimit = models.DefaultDailyLimit
	}
	return s
}

// Authorize decides a single payment. Refusals before scoring are returned as
// *models.AuthorizationError and persist nothing. A declined transaction is a
// normal result, not an error.
func (s *AuthorizationService) Authorize(ctx context.Context, req AuthorizeRequest) (*models.Transaction, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
			s.credentials.RecordUnknownUser(ctx, req.UserID)
			return nil, models.ErrInvalidPIN
		}
		return nil, storeError("get user", err)
	}

	if err := s.credentials.VerifyPIN(ctx, user, req.PIN); err != nil {
		return nil, err
	}

	if !user.IsActive() {
		if user.IsLocked() {
			return nil, models.ErrAccountLocked
		}
		return nil, models.ErrAccountInactive
	}

	device, err := s.devices.Resolve(ctx, user.ID, req.DeviceIdentifier)
	if err != nil {
		return nil, err
	}

	txn, assessment, err := s.decide(ctx, user, device, req)
	if err != nil {
		return nil, err
	}

	severity := models.SeverityLow
	if txn.RiskScore > 70 {
		severity = models.SeverityHigh
	}
	s.events.Emit(ctx, &user.ID, models.EventTypeTransactionProcessed, severity,
		fmt.Sprintf("Transaction %s with risk score %d", txn.Status, txn.RiskScore),
		models.NewTransactionEventMetadata(txn, assessment.Triggered))

	if txn.IsApproved() {
		if err := s.devices.MarkUsed(ctx, device.ID, txn.CreatedAt); err != nil {
			s.logger.WarnContext(ctx, "failed to update device last used",
				slog.String("device_id", device.ID),
				slog.Any("error", err),
			)
		}
	}

	s.publish(ctx, txn)

	s.logger.InfoContext(ctx, "transaction authorized",
		slog.String("transaction_id", txn.ID),
		slog.String("user_id", user.ID),
		slog.String("status", txn.Status),
		slog.Int("risk_score", txn.RiskScore),
	)
	return txn, nil
}

// decide runs the limit check, scoring and insert under the per-user lock so
// that concurrent payments for one user see each other's approved totals.
func (s *AuthorizationService) decide(ctx context.Context, user *models.User, device *models.Device, req AuthorizeRequest) (*models.Transaction, risk.Assessment, error) {
	lockCtx := ctx
	if s.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}
	unlock, err := s.locker.Lock(lockCtx, user.ID)
	if err != nil {
		return nil, risk.Assessment{}, storeError("acquire user lock", err)
	}
	defer unlock()

	// the locked section must finish before a lease can expire under it
	if leased, ok := s.locker.(LeasedLocker); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, holdBudget(leased.Lease()))
		defer cancel()
	}

	now := s.now().Truncate(time.Microsecond)

	approvedToday, err := s.ledger.SumApprovedSince(ctx, user.ID, StartOfDay(now, s.location))
	if err != nil {
		return nil, risk.Assessment{}, storeError("sum approved today", err)
	}

	limit := user.EffectiveDailyLimit(s.defaultDailyLimit)
	if approvedToday.Add(req.Amount).GreaterThan(limit) {
		s.logger.InfoContext(ctx, "daily limit exceeded",
			slog.String("user_id", user.ID),
			slog.String("approved_today", approvedToday.StringFixed(2)),
			slog.String("limit", limit.StringFixed(2)),
		)
		return nil, risk.Assessment{}, models.ErrDailyLimitExceeded
	}

	since := now.Add(-s.engine.HistoryWindow())
	history, err := s.ledger.FindByUser(ctx, user.ID, models.TransactionFilter{Since: &since})
	if err != nil {
		return nil, risk.Assessment{}, storeError("load recent transactions", err)
	}

	assessment := s.engine.Score(risk.Candidate{
		Amount:     req.Amount,
		MerchantID: req.MerchantID,
		At:         now,
	}, history, approvedToday)
	status, reason := risk.Decide(assessment.Score)

	txn := &models.Transaction{
		UserID:        user.ID,
		DeviceID:      device.ID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		MerchantID:    req.MerchantID,
		MerchantName:  req.MerchantName,
		Status:        status,
		RiskScore:     assessment.Score,
		DeclineReason: reason,
		Signature:     pkgauth.SignTransaction(user.ID, req.Amount, req.MerchantID, now),
		CreatedAt:     now,
	}

	created, err := s.ledger.Create(ctx, txn)
	if errors.Is(err, models.ErrBadRequest) {
		return nil, risk.Assessment{}, fmt.Errorf("persist transaction: %w", err)
	}
	if err != nil {
		return nil, risk.Assessment{}, storeError("persist transaction", err)
	}
	return created, assessment, nil
}

func (s *AuthorizationService) publish(ctx context.Context, txn *models.Transaction) {
	if s.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()

	event := TransactionEvent{
		TransactionID: txn.ID,
		UserID:        txn.UserID,
		DeviceID:      txn.DeviceID,
		Amount:        txn.Amount.StringFixed(2),
		Currency:      txn.Currency,
		MerchantID:    txn.MerchantID,
		Status:        txn.Status,
		RiskScore:     txn.RiskScore,
		DeclineReason: txn.DeclineReason,
		CreatedAt:     txn.CreatedAt.UTC(),
	}
	if err := s.publisher.Publish(pubCtx, s.exchange, "transaction."+txn.Status, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish transaction event",
			slog.String("transaction_id", txn.ID),
			slog.Any("error", err),
		)
		s.ops.Report(ctx, "publisher", "transaction_event", err, map[string]string{"transaction_id": txn.ID})
	}
}

// holdBudget leaves a fifth of the lease for the release round trip
func holdBudget(lease time.Duration) time.Duration {
	return lease - lease/5
}

// StartOfDay returns local midnight for t in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
