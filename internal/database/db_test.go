package database_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/tappay/internal/database"
	"github.com/BradenHooton/tappay/internal/models"
)

func TestMapPostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, models.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), models.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, models.ErrConflict},
		{"foreign key violation", &pgconn.PgError{Code: "23503"}, models.ErrBadRequest},
		{"check violation", &pgconn.PgError{Code: "23514"}, models.ErrBadRequest},
		{"malformed uuid", &pgconn.PgError{Code: "22P02"}, models.ErrBadRequest},
		{"value too long for column", &pgconn.PgError{Code: "22001"}, models.ErrBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, database.MapPostgresError(tt.err), tt.want)
		})
	}
}

func TestMapPostgresError_PassesThroughUnknownErrors(t *testing.T) {
	assert.NoError(t, database.MapPostgresError(nil))

	connErr := errors.New("connection reset by peer")
	assert.Equal(t, connErr, database.MapPostgresError(connErr))

	serialization := &pgconn.PgError{Code: "40001"}
	assert.Equal(t, error(serialization), database.MapPostgresError(serialization))
}
