package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/tappay/internal/models"
	pkglogger "github.com/BradenHooton/tappay/pkg/logger"
)

// DeviceService owns device registration and ownership checks
type DeviceService struct {
	repo   DeviceRepository
	events *SecurityEventService
	logger *slog.Logger
}

func NewDeviceService(repo DeviceRepository, events *SecurityEventService, logger *slog.Logger) *DeviceService {
	return &DeviceService{repo: repo, events: events, logger: logger}
}

// DefaultDeviceName builds the friendly name given to auto-registered devices
func DefaultDeviceName(identifier string) string {
	id := strings.TrimSpace(identifier)
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "Tap Device " + strings.ToUpper(id)
}

// Resolve returns the active device for identifier owned by userID, registering
// it to userID on first sight. A device owned by anyone else is never reassigned.
func (s *DeviceService) Resolve(ctx context.Context, userID, identifier string) (*models.Device, error) {
	device, err := s.repo.FindByIdentifier(ctx, identifier)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrNotFound):
		device, err = s.register(ctx, userID, identifier)
		if err != nil {
			return nil, err
		}
	default:
		return nil, storeError("find device", err)
	}

	if !device.IsOwnedBy(userID) {
		s.logger.WarnContext(ctx, "device presented by non-owner",
			slog.String("user_id", userID),
			slog.String("device_id", device.ID),
		)
		return nil, models.ErrDeviceNotOwned
	}
	if !device.IsActive {
		return nil, models.ErrDeviceInactive
	}
	return device, nil
}

func (s *DeviceService) register(ctx context.Context, userID, identifier string) (*models.Device, error) {
	created, err := s.repo.Create(ctx, &models.Device{
		UserID:           userID,
		DeviceIdentifier: identifier,
		Name:             DefaultDeviceName(identifier),
	})
	if errors.Is(err, models.ErrConflict) {
		// lost a registration race; whoever won owns the device
		existing, findErr := s.repo.FindByIdentifier(ctx, identifier)
		if findErr != nil {
			return nil, storeError("find device after conflict", findErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, storeError("register device", err)
	}

	s.events.Emit(ctx, &userID, models.EventTypeDeviceRegistered, models.SeverityLow,
		"New device registered",
		models.EventMetadata{
			"device_id":         created.ID,
			"device_identifier": pkglogger.MaskIdentifier(identifier),
			"name":              created.Name,
		})

	return created, nil
}

// MarkUsed records the time of the device's latest approved payment
func (s *DeviceService) MarkUsed(ctx context.Context, deviceID string, at time.Time) error {
	if err := s.repo.TouchLastUsed(ctx, deviceID, at); err != nil {
		return storeError("touch device", err)
	}
	return nil
}

// List returns the user's devices, newest first
func (s *DeviceService) List(ctx context.Context, userID string) ([]*models.Device, error) {
	devices, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, storeError("list devices", err)
	}
	return devices, nil
}

// Deactivate disables a device. Only the owner may do this; ownership itself never changes.
func (s *DeviceService) Deactivate(ctx context.Context, userID, deviceID string) (*models.Device, error) {
	device, err := s.repo.GetByID(ctx, deviceID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, storeError("get device", err)
	}
	if !device.IsOwnedBy(userID) {
		return nil, fmt.Errorf("deactivate device: %w", models.ErrForbidden)
	}
	if !device.IsActive {
		return device, nil
	}

	if err := s.repo.SetActive(ctx, device.ID, false); err != nil {
		return nil, storeError("deactivate device", err)
	}
	device.IsActive = false

	s.events.Emit(ctx, &userID, models.EventTypeDeviceDeactivated, models.SeverityMedium,
		"Device deactivated by owner",
		models.EventMetadata{"device_id": device.ID, "name": device.Name})

	return device, nil
}
