package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/tappay/internal/models"
)

// SecurityEventService dual-writes security events: a structured log line
// first, then the persisted audit row.
type SecurityEventService struct {
	repo   SecurityEventRepository
	ops    OpsReporter
	logger *slog.Logger
	now    func() time.Time
}

func NewSecurityEventService(repo SecurityEventRepository, ops OpsReporter, logger *slog.Logger) *SecurityEventService {
	if ops == nil {
		ops = noopOpsReporter{}
	}
	return &SecurityEventService{repo: repo, ops: ops, logger: logger, now: time.Now}
}

// Record writes the event and returns the persistence error, if any
func (s *SecurityEventService) Record(ctx context.Context, userID *string, eventType, severity, description string, metadata models.EventMetadata) (*models.SecurityEvent, error) {
	event := &models.SecurityEvent{
		ID:          uuid.New(),
		UserID:      userID,
		EventType:   eventType,
		Severity:    severity,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   s.now(),
	}

	level := slog.LevelInfo
	switch severity {
	case models.SeverityHigh, models.SeverityCritical:
		level = slog.LevelWarn
	}
	s.logger.LogAttrs(ctx, level, "security event",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", eventType),
		slog.String("severity", severity),
		slog.Any("user_id", userID),
		slog.Any("metadata", metadata),
	)

	if err := s.repo.Create(ctx, event); err != nil {
		return event, fmt.Errorf("append security event: %w", err)
	}
	return event, nil
}

// Emit is the best-effort form used by the payment path. A persistence
// failure is logged and routed to the ops channel, never to the caller.
func (s *SecurityEventService) Emit(ctx context.Context, userID *string, eventType, severity, description string, metadata models.EventMetadata) {
	event, err := s.Record(ctx, userID, eventType, severity, description, metadata)
	if err == nil {
		return
	}

	s.logger.ErrorContext(ctx, "failed to persist security event",
		slog.String("event_type", eventType),
		slog.Any("error", err),
	)

	fields := map[string]string{
		"event_id":   event.ID.String(),
		"event_type": eventType,
		"severity":   severity,
	}
	if userID != nil {
		fields["user_id"] = *userID
	}
	s.ops.Report(ctx, "security_events", "append", err, fields)
}

// ListForUser returns events at or after since, newest first
func (s *SecurityEventService) ListForUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	events, err := s.repo.FindByUser(ctx, userID, since, limit)
	if err != nil {
		return nil, storeError("list security events", err)
	}
	return events, nil
}
