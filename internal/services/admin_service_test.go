package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/tappay/internal/models"
)

func TestAdminService_UnlockUser(t *testing.T) {
	h := newHarness(t)
	h.setClock(testNow)
	user := h.addUser(t, "1234")
	ctx := context.Background()

	for i := 0; i < models.DefaultMaxFailedPINAttempts; i++ {
		_, _ = h.authorizer.Authorize(ctx, payment(user.ID, "0000", "5.00", "m1"))
	}
	require.Equal(t, models.UserStatusLocked, h.users.get(user.ID).Status)

	unlocked, err := h.admin.UnlockUser(ctx, "admin-1", user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusActive, unlocked.Status)
	assert.Equal(t, 0, unlocked.FailedAuthAttempts)

	events := h.eventRepo.ofType(models.EventTypeAccountUnlocked)
	require.Len(t, events, 1)
	assert.Equal(t, "admin-1", events[0].Metadata["admin_id"])
	assert.Equal(t, models.UserStatusLocked, events[0].Metadata["previous_status"])

	txn, err := h.authorizer.Authorize(ctx, payment(user.ID, "1234", "5.00", "m1"))
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusApproved, txn.Status)
}

func TestAdminService_UnlockUnknownUser(t *testing.T) {
	h := newHarness(t)

	_, err := h.admin.UnlockUser(context.Background(), "admin-1", "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}
