package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	pkgauth "github.com/BradenHooton/tappay/pkg/auth"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
)

// CredentialService verifies PINs and enforces the failed-attempt lockout
type CredentialService struct {
	users       UserRepository
	hasher      pkgauth.PINHasher
	events      *SecurityEventService
	alerts      AlertNotifier
	ops         OpsReporter
	delay       *auth.TimingDelay
	audit       *pkglogger.AuditLogger
	maxAttempts int
	logger      *slog.Logger
	now         func() time.Time
}

type CredentialServiceDeps struct {
	Users       UserRepository
	Hasher      pkgauth.PINHasher
	Events      *SecurityEventService
	Alerts      AlertNotifier
	Ops         OpsReporter
	Delay       *auth.TimingDelay
	Audit       *pkglogger.AuditLogger
	MaxAttempts int
	Logger      *slog.Logger
}

func NewCredentialService(deps CredentialServiceDeps) *CredentialService {
	s := &CredentialService{
		users:       deps.Users,
		hasher:      deps.Hasher,
		events:      deps.Events,
		alerts:      deps.Alerts,
		ops:         deps.Ops,
		delay:       deps.Delay,
		audit:       deps.Audit,
		maxAttempts: deps.MaxAttempts,
		logger:      deps.Logger,
		now:         time.Now,
	}
	if s.alerts == nil {
		s.alerts = noopAlertNotifier{}
	}
	if s.ops == nil {
		s.ops = noopOpsReporter{}
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = models.DefaultMaxFailedPINAttempts
	}
	if s.audit == nil {
		s.audit = pkglogger.NewAuditLogger(deps.Logger)
	}
	return s
}

// HashPIN validates the PIN format and returns its digest
func (s *CredentialService) HashPIN(pin string) (string, error) {
	if err := pkgauth.ValidatePIN(pin); err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	return s.hasher.Hash(pin)
}

// VerifyPIN checks pin against the user's digest. A locked account is refused
// before the PIN is compared and its counter is left alone. On mismatch the
// counter is incremented; reaching the threshold locks the account and emits
// exactly one account_locked event.
func (s *CredentialService) VerifyPIN(ctx context.Context, user *models.User, pin string) error {
	if user.IsLocked() {
		return models.ErrAccountLocked
	}

	start := s.now()
	err := s.hasher.Compare(user.PINHash, pin)
	if err == nil {
		if resetErr := s.users.ResetFailedPIN(ctx, user.ID); resetErr != nil {
			return storeError("reset failed PIN counter", resetErr)
		}
		user.FailedAuthAttempts = 0
		return nil
	}
	if !errors.Is(err, pkgauth.ErrPINMismatch) {
		s.logger.ErrorContext(ctx, "PIN comparison failed", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	if failErr := s.recordFailure(ctx, user); failErr != nil {
		return failErr
	}

	s.delay.WaitFrom(ctx, start)
	return models.ErrInvalidPIN
}

// RecordUnknownUser audits a PIN attempt against a user id that does not exist
func (s *CredentialService) RecordUnknownUser(ctx context.Context, userID string) {
	start := s.now()
	s.events.Emit(ctx, nil, models.EventTypeInvalidPIN, models.SeverityMedium,
		"PIN attempt for unknown user",
		models.EventMetadata{"claimed_user_id": userID})
	s.delay.WaitFrom(ctx, start)
}

func (s *CredentialService) recordFailure(ctx context.Context, user *models.User) error {
	now := s.now()
	attempts, err := s.users.RecordFailedPIN(ctx, user.ID, now)
	if err != nil {
		return storeError("record failed PIN", err)
	}
	user.FailedAuthAttempts = attempts
	user.LastFailedAuthAt = &now

	s.events.Emit(ctx, &user.ID, models.EventTypeInvalidPIN, models.SeverityMedium,
		"Invalid PIN entered",
		models.EventMetadata{
			"failed_attempts": attempts,
			"max_attempts":    s.maxAttempts,
		})

	if attempts < s.maxAttempts {
		return nil
	}

	if user.Status != models.UserStatusLocked {
		if err := s.users.UpdateStatus(ctx, user.ID, models.UserStatusLocked); err != nil {
			return storeError("lock account", err)
		}
		user.Status = models.UserStatusLocked
	}

	// only the attempt that crossed the threshold announces the lock
	if attempts != s.maxAttempts {
		return nil
	}

	s.events.Emit(ctx, &user.ID, models.EventTypeAccountLocked, models.SeverityCritical,
		"Account locked after repeated invalid PIN attempts",
		models.EventMetadata{"failed_attempts": attempts})

	if err := s.alerts.NotifyAccountLocked(ctx, user, attempts); err != nil {
		s.logger.ErrorContext(ctx, "failed to send account locked alert",
			slog.String("user_id", user.ID),
			slog.Any("error", err),
		)
		s.ops.Report(ctx, "alerts", "account_locked", err, map[string]string{
			"user_id":  user.ID,
			"attempts": strconv.Itoa(attempts),
		})
	}
	return nil
}

// ChangePIN replaces the user's PIN after verifying the current one
func (s *CredentialService) ChangePIN(ctx context.Context, userID, currentPIN, newPIN string) error {
	if err := pkgauth.ValidatePIN(newPIN); err != nil {
		return fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ErrNotFound
	}
	if err != nil {
		return storeError("get user", err)
	}

	if err := s.VerifyPIN(ctx, user, currentPIN); err != nil {
		s.audit.LogCredentialChange(ctx, pkglogger.AuditEvent{
			EventType:     "pin_change",
			UserID:        userID,
			FailureReason: err.Error(),
		})
		return err
	}

	digest, err := s.hasher.Hash(newPIN)
	if err != nil {
		return fmt.Errorf("hash new PIN: %w", err)
	}
	if err := s.users.UpdatePINHash(ctx, userID, digest); err != nil {
		return storeError("update PIN", err)
	}

	s.events.Emit(ctx, &userID, models.EventTypePINChanged, models.SeverityMedium,
		"PIN changed",
		models.EventMetadata{"algorithm": s.hasher.Algorithm()})
	s.audit.LogCredentialChange(ctx, pkglogger.AuditEvent{
		EventType: "pin_change",
		UserID:    userID,
		Success:   true,
	})
	return nil
}
