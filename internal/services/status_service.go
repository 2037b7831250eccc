package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/metrics"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

var ErrInvalidStatus = errors.New("invalid status record")

// ChangePublisher hands a status change to the fan-out, either inline or
// through a change stream.
type ChangePublisher interface {
	Publish(ctx context.Context, change models.StatusChange) error
}

// StatusService owns writes to the shared status records and the friend
// status read model.
type StatusService struct {
	statusRepo  repositories.StatusRepository
	cache       repositories.StatusCacheRepository
	friendships repositories.FriendshipReader
	publisher   ChangePublisher
	logger      *slog.Logger
}

func NewStatusService(
	statusRepo repositories.StatusRepository,
	cache repositories.StatusCacheRepository,
	friendships repositories.FriendshipReader,
	publisher ChangePublisher,
	logger *slog.Logger,
) *StatusService {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StatusService{
		statusRepo:  statusRepo,
		cache:       cache,
		friendships: friendships,
		publisher:   publisher,
		logger:      logger,
	}
}

// Report overwrites the owner's record and emits the before/after pair.
// The write is the commit point: cache and publish failures are logged and
// do not fail the call, since the next write re-triggers both.
func (s *StatusService) Report(ctx context.Context, ownerID uuid.UUID, record *models.StatusRecord) (*models.StatusRecord, error) {
	if record == nil {
		return nil, ErrInvalidStatus
	}
	if record.IsAtKnownLocation && (record.LocationName == nil || *record.LocationName == "") {
		return nil, ErrInvalidStatus
	}
	if err := models.CheckDisplayFields(deref(record.LocationName), deref(record.IconID), deref(record.ColorHex)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidStatus, err)
	}
	if len(deref(record.AccessPointID)) > models.MaxAccessPointIDLength {
		return nil, fmt.Errorf("%w: access point id too long", ErrInvalidStatus)
	}
	record.OwnerID = ownerID

	prev, err := s.statusRepo.Upsert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to write status: %w", err)
	}
	metrics.ObserveStatusWrite(statusKind(record))

	if err := s.cache.Set(ctx, record); err != nil {
		s.logger.Warn("status cache update failed", "user_id", ownerID, "error", err)
	}

	change := models.StatusChange{OwnerID: ownerID, Before: prev, After: record}
	if err := s.publisher.Publish(ctx, change); err != nil {
		s.logger.Error("status change publish failed", "user_id", ownerID, "version", record.Version, "error", err)
	}
	return record, nil
}

func (s *StatusService) Get(ctx context.Context, ownerID uuid.UUID) (*models.StatusRecord, error) {
	record, err := s.cache.Get(ctx, ownerID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		s.logger.Warn("status cache read failed", "user_id", ownerID, "error", err)
	}
	return s.statusRepo.GetByOwner(ctx, ownerID)
}

// FriendStatuses returns the current record of every accepted friend that
// has reported at least once. Cache misses are filled from Postgres.
func (s *StatusService) FriendStatuses(ctx context.Context, accountID uuid.UUID) ([]*models.StatusRecord, error) {
	edges, err := s.friendships.ListAccepted(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	var friendIDs []uuid.UUID
	for _, edge := range edges {
		other, ok := edge.Other(accountID)
		if !ok || seen[other] {
			continue
		}
		seen[other] = true
		friendIDs = append(friendIDs, other)
	}

	cached, err := s.cache.GetBulk(ctx, friendIDs)
	if err != nil {
		s.logger.Warn("status cache bulk read failed", "user_id", accountID, "error", err)
		cached = map[uuid.UUID]*models.StatusRecord{}
	}

	statuses := make([]*models.StatusRecord, 0, len(friendIDs))
	for _, id := range friendIDs {
		if record, ok := cached[id]; ok {
			statuses = append(statuses, record)
			continue
		}
		record, err := s.statusRepo.GetByOwner(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get friend status: %w", err)
		}
		statuses = append(statuses, record)
	}
	return statuses, nil
}

func statusKind(record *models.StatusRecord) string {
	switch {
	case record.IsAtKnownLocation:
		return models.PresenceKnownLocation.String()
	case record.AccessPointID != nil:
		return models.PresenceUnknownNetwork.String()
	default:
		return models.PresenceOffline.String()
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
