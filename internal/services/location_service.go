package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/presence"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

var (
	ErrInvalidBinding  = errors.New("invalid location binding")
	ErrBindingNotFound = errors.New("location binding not found")
)

type LocationService struct {
	bindingRepo repositories.LocationBindingRepository
}

func NewLocationService(bindingRepo repositories.LocationBindingRepository) *LocationService {
	return &LocationService{bindingRepo: bindingRepo}
}

func (s *LocationService) List(ctx context.Context, ownerID uuid.UUID) ([]*models.LocationBinding, error) {
	bindings, err := s.bindingRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list location bindings: %w", err)
	}
	if bindings == nil {
		bindings = []*models.LocationBinding{}
	}
	return bindings, nil
}

// Put binds an access point to a named location, replacing the display
// fields of an existing binding for the same access point.
func (s *LocationService) Put(ctx context.Context, ownerID uuid.UUID, binding *models.LocationBinding) (*models.LocationBinding, error) {
	binding.OwnerID = ownerID
	binding.DisplayName = strings.TrimSpace(binding.DisplayName)
	if binding.DisplayName == "" {
		return nil, fmt.Errorf("%w: display name is required", ErrInvalidBinding)
	}
	if err := models.CheckDisplayFields(binding.DisplayName, binding.IconID, binding.ColorHex); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBinding, err)
	}
	if !presence.IsValidAccessPointID(binding.AccessPointID) {
		return nil, fmt.Errorf("%w: %q is not a usable access point id", ErrInvalidBinding, binding.AccessPointID)
	}
	if err := s.bindingRepo.Upsert(ctx, binding); err != nil {
		return nil, fmt.Errorf("failed to save location binding: %w", err)
	}
	return binding, nil
}

func (s *LocationService) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	err := s.bindingRepo.Delete(ctx, ownerID, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return ErrBindingNotFound
	}
	return err
}
