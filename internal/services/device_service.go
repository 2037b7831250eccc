package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

var ErrInvalidPushToken = errors.New("invalid push token")

type DeviceService struct {
	deviceRepo repositories.DeviceRepository
}

func NewDeviceService(deviceRepo repositories.DeviceRepository) *DeviceService {
	return &DeviceService{deviceRepo: deviceRepo}
}

// RegisterPushToken stores the push target of one of the caller's devices.
// A token can belong to a single device at a time.
func (s *DeviceService) RegisterPushToken(ctx context.Context, accountID, deviceID uuid.UUID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidPushToken
	}

	device, err := s.deviceRepo.GetByID(ctx, deviceID)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrDeviceNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get device: %w", err)
	}
	if device.AccountID != accountID || device.RevokedAt != nil {
		return ErrDeviceNotFound
	}

	if err := s.deviceRepo.SetPushToken(ctx, deviceID, token); err != nil {
		return fmt.Errorf("failed to set push token: %w", err)
	}
	return nil
}
