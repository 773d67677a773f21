package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BradenHooton/tappay/internal/database"
	"github.com/BradenHooton/tappay/internal/models"
)

// SecurityEventRepository is the append-only audit log
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	if event.Metadata == nil {
		event.Metadata = models.EventMetadata{}
	}

	query := `
		INSERT INTO security_events (id, user_id, event_type, severity, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.UserID, event.EventType, event.Severity, event.Description, event.Metadata, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", database.MapPostgresError(err))
	}
	return nil
}

// FindByUser returns events for userID at or after since, newest first
func (r *SecurityEventRepository) FindByUser(ctx context.Context, userID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, user_id, event_type, severity, description, metadata, created_at
		FROM security_events
		WHERE user_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		var e models.SecurityEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Severity, &e.Description, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return events, nil
}
