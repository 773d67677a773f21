package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/tappay/internal/auth"
	"github.com/BradenHooton/tappay/internal/models"
	pkgauth "github.com/BradenHooton/tappay/pkg/auth"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
)

// dummyPasswordHash keeps unknown-email logins as slow as wrong-password ones
const dummyPasswordHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO6lE7pXQh0RfaXo4nU7kR8LrWm1sNqjK"

// AuthResponse is returned by register and login
type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"-"`
}

// AuthService handles signup and password login
type AuthService struct {
	users       UserRepository
	credentials *CredentialService
	events      *SecurityEventService
	tm          *auth.TokenManager
	audit       *pkglogger.AuditLogger
	logger      *slog.Logger
}

func NewAuthService(users UserRepository, credentials *CredentialService, events *SecurityEventService, tm *auth.TokenManager, audit *pkglogger.AuditLogger, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:       users,
		credentials: credentials,
		events:      events,
		tm:          tm,
		audit:       audit,
		logger:      logger,
	}
}

// Register creates an active user with a password and a payment PIN
func (s *AuthService) Register(ctx context.Context, email, password, pin string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if err := pkgauth.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBadRequest, err)
	}
	pinHash, err := s.credentials.HashPIN(pin)
	if err != nil {
		return nil, err
	}
	passwordHash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, &models.User{
		Email:        email,
		PasswordHash: passwordHash,
		PINHash:      pinHash,
		Role:         models.RoleUser,
		Status:       models.UserStatusActive,
	})
	if errors.Is(err, models.ErrConflict) {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "register", FailureReason: "email_taken"})
		return nil, models.ErrConflict
	}
	if err != nil {
		return nil, storeError("create user", err)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("email", pkglogger.SanitizedEmail(email)),
	)
	s.events.Emit(ctx, &user.ID, models.EventTypeUserRegistered, models.SeverityLow,
		"User registered", models.EventMetadata{"role": user.Role})
	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "register", UserID: user.ID, Success: true})

	return s.issue(user)
}

// Login verifies email and password and issues an access token. Locked and
// suspended users may still log in to view their account; payments stay blocked.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, models.ErrUnauthorized
	}

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		_ = pkgauth.ComparePassword(dummyPasswordHash, password)
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "login", FailureReason: "invalid_credentials"})
		return nil, models.ErrUnauthorized
	}
	if err != nil {
		return nil, storeError("get user by email", err)
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     "login",
			UserID:        user.ID,
			FailureReason: "invalid_credentials",
		})
		return nil, models.ErrUnauthorized
	}

	s.audit.LogAuthAttempt(ctx, pkglogger.AuditEvent{EventType: "login", UserID: user.ID, Success: true})
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	token, expiresAt, err := s.tm.GenerateAccessToken(user.ID, user.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &AuthResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}
