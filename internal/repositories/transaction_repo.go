package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/BradenHooton/tappay/internal/database"
	"github.com/BradenHooton/tappay/internal/models"
)

const transactionColumns = `id, user_id, device_id, amount, currency, merchant_id, merchant_name,
	status, risk_score, decline_reason, signature, created_at`

// TransactionRepository is the append-only ledger. There is no update path.
type TransactionRepository struct {
	pool *pgxpool.Pool
}

func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{pool: db.Pool}
}

func scanTransactionRow(scanner rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	err := scanner.Scan(
		&t.ID, &t.UserID, &t.DeviceID, &t.Amount, &t.Currency, &t.MerchantID, &t.MerchantName,
		&t.Status, &t.RiskScore, &t.DeclineReason, &t.Signature, &t.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	t.Currency = strings.TrimSpace(t.Currency)
	return &t, nil
}

func scanTransactionRows(rows pgx.Rows) ([]*models.Transaction, error) {
	defer rows.Close()

	txns := make([]*models.Transaction, 0)
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return txns, nil
}

// Create persists txn as given. ID and CreatedAt are filled when empty;
// the caller signs over CreatedAt so it must already be set when signing.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) (*models.Transaction, error) {
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().Truncate(time.Microsecond)
	}

	query := `
		INSERT INTO transactions (id, user_id, device_id, amount, currency, merchant_id, merchant_name,
			status, risk_score, decline_reason, signature, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING ` + transactionColumns

	return scanTransactionRow(r.pool.QueryRow(ctx, query,
		txn.ID, txn.UserID, txn.DeviceID, txn.Amount, txn.Currency, txn.MerchantID, txn.MerchantName,
		txn.Status, txn.RiskScore, txn.DeclineReason, txn.Signature, txn.CreatedAt,
	))
}

func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransactionRow(r.pool.QueryRow(ctx, query, id))
}

// FindByUser returns the user's transactions newest first, narrowed by filter
func (r *TransactionRepository) FindByUser(ctx context.Context, userID string, filter models.TransactionFilter) ([]*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = $1`
	args := []interface{}{userID}

	if filter.Since != nil {
		args = append(args, *filter.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, pq.Array(filter.Statuses))
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return scanTransactionRows(rows)
}

// SumApprovedSince totals the user's approved amounts created at or after since
func (r *TransactionRepository) SumApprovedSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE user_id = $1 AND status = 'approved' AND created_at >= $2
	`

	var total decimal.Decimal
	if err := r.pool.QueryRow(ctx, query, userID, since).Scan(&total); err != nil {
		return decimal.Zero, database.MapPostgresError(err)
	}
	return total, nil
}
