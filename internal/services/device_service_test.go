package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/tappay/internal/models"
)

func TestDefaultDeviceName(t *testing.T) {
	assert.Equal(t, "Tap Device AB12", DefaultDeviceName("phone-ab12"))
	assert.Equal(t, "Tap Device XY", DefaultDeviceName(" xy "))
}

func TestDeviceService_ResolveRegistersOnFirstUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	device, err := h.deviceService.Resolve(ctx, "user-1", "pos-0001")
	require.NoError(t, err)
	assert.Equal(t, "user-1", device.UserID)
	assert.Equal(t, "Tap Device 0001", device.Name)
	assert.True(t, device.IsActive)

	again, err := h.deviceService.Resolve(ctx, "user-1", "pos-0001")
	require.NoError(t, err)
	assert.Equal(t, device.ID, again.ID)
	assert.Len(t, h.eventRepo.ofType(models.EventTypeDeviceRegistered), 1)
}

func TestDeviceService_RegistrationRaceKeepsFirstOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	winner, err := h.devices.Create(ctx, &models.Device{UserID: "user-1", DeviceIdentifier: "pos-0002", Name: "x"})
	require.NoError(t, err)

	// the loser saw no device, then hits the unique constraint
	loser := &racingDeviceRepo{memDeviceRepo: h.devices}
	svc := NewDeviceService(loser, h.events, testLogger())

	_, err = svc.Resolve(ctx, "user-2", "pos-0002")
	require.ErrorIs(t, err, models.ErrDeviceNotOwned)

	stored, err := h.devices.GetByID(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
}

// racingDeviceRepo misses the first lookup as if another registration was in flight
type racingDeviceRepo struct {
	*memDeviceRepo
	looked bool
}

func (r *racingDeviceRepo) FindByIdentifier(ctx context.Context, identifier string) (*models.Device, error) {
	if !r.looked {
		r.looked = true
		return nil, models.ErrNotFound
	}
	return r.memDeviceRepo.FindByIdentifier(ctx, identifier)
}

func TestDeviceService_ResolveStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.devices.CreateErr = errors.New("pool closed")

	_, err := h.deviceService.Resolve(context.Background(), "user-1", "pos-0003")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
}

func TestDeviceService_Deactivate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	device, err := h.deviceService.Resolve(ctx, "user-1", "pos-0004")
	require.NoError(t, err)

	_, err = h.deviceService.Deactivate(ctx, "user-2", device.ID)
	require.ErrorIs(t, err, models.ErrForbidden)

	_, err = h.deviceService.Deactivate(ctx, "user-1", "missing")
	require.ErrorIs(t, err, models.ErrNotFound)

	updated, err := h.deviceService.Deactivate(ctx, "user-1", device.ID)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "user-1", updated.UserID)

	// idempotent, no second event
	_, err = h.deviceService.Deactivate(ctx, "user-1", device.ID)
	require.NoError(t, err)
	assert.Len(t, h.eventRepo.ofType(models.EventTypeDeviceDeactivated), 1)

	_, err = h.deviceService.Resolve(ctx, "user-1", "pos-0004")
	assert.ErrorIs(t, err, models.ErrDeviceInactive)
}
