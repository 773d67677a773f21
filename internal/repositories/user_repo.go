package repositories

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/database"
	"github.com/BradenHooton/tappay/internal/models"
)

const userColumns = `id, email, password_hash, pin_hash, role, status, daily_limit,
	failed_auth_attempts, last_failed_auth_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{pool: db.Pool}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var pinHash *string
	var dailyLimit decimal.NullDecimal

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &pinHash, &user.Role, &user.Status, &dailyLimit,
		&user.FailedAuthAttempts, &user.LastFailedAuthAt, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if pinHash != nil {
		user.PINHash = *pinHash
	}
	if dailyLimit.Valid {
		limit := dailyLimit.Decimal
		user.DailyLimit = &limit
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, strings.ToLower(email)))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(user.Email)

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = models.RoleUser
	}
	if user.Status == "" {
		user.Status = models.UserStatusActive
	}

	var dailyLimit decimal.NullDecimal
	if user.DailyLimit != nil {
		dailyLimit = decimal.NewNullDecimal(*user.DailyLimit)
	}

	query := `
		INSERT INTO users (id, email, password_hash, pin_hash, role, status, daily_limit, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.PINHash, user.Role, user.Status, dailyLimit,
		user.CreatedAt, user.UpdatedAt,
	))
}

// RecordFailedPIN increments the failed counter atomically and returns the new value
func (r *UserRepository) RecordFailedPIN(ctx context.Context, id string, at time.Time) (int, error) {
	query := `
		UPDATE users
		SET failed_auth_attempts = failed_auth_attempts + 1, last_failed_auth_at = $2, updated_at = $2
		WHERE id = $1
		RETURNING failed_auth_attempts
	`

	var attempts int
	if err := r.pool.QueryRow(ctx, query, id, at).Scan(&attempts); err != nil {
		return 0, database.MapPostgresError(err)
	}
	return attempts, nil
}

// ResetFailedPIN zeroes the counter after a successful verification
func (r *UserRepository) ResetFailedPIN(ctx context.Context, id string) error {
	query := `
		UPDATE users SET failed_auth_attempts = 0, updated_at = NOW()
		WHERE id = $1 AND failed_auth_attempts <> 0
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return database.MapPostgresError(err)
	}
	return nil
}

func (r *UserRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE users SET status = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, status)
}

func (r *UserRepository) UpdatePINHash(ctx context.Context, id, pinHash string) error {
	query := `UPDATE users SET pin_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, pinHash)
}

// Unlock reactivates a locked account and clears its failure counter
func (r *UserRepository) Unlock(ctx context.Context, id string) (*models.User, error) {
	query := `
		UPDATE users
		SET status = 'active', failed_auth_attempts = 0, last_failed_auth_at = NULL, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) execOne(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
