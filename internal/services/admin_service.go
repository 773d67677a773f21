package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BradenHooton/tappay/internal/models"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
)

// AdminService performs administrative actions on accounts
type AdminService struct {
	users  UserRepository
	events *SecurityEventService
	audit  *pkglogger.AuditLogger
	logger *slog.Logger
}

func NewAdminService(users UserRepository, events *SecurityEventService, audit *pkglogger.AuditLogger, logger *slog.Logger) *AdminService {
	return &AdminService{users: users, events: events, audit: audit, logger: logger}
}

// UnlockUser is the only path out of the locked state. It clears the failed
// PIN counter and reactivates the account.
func (s *AdminService) UnlockUser(ctx context.Context, adminID, userID string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrBadRequest) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get user", err)
	}

	previousStatus := user.Status
	previousAttempts := user.FailedAuthAttempts

	unlocked, err := s.users.Unlock(ctx, userID)
	if err != nil {
		return nil, storeError("unlock user", err)
	}

	s.events.Emit(ctx, &userID, models.EventTypeAccountUnlocked, models.SeverityMedium,
		"Account unlocked by administrator",
		models.EventMetadata{
			"admin_id":          adminID,
			"previous_status":   previousStatus,
			"previous_attempts": previousAttempts,
		})

	s.audit.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: "account_unlock",
		UserID:    userID,
		Success:   true,
		Metadata:  map[string]string{"admin_id": adminID, "previous_status": previousStatus},
	})

	return unlocked, nil
}
