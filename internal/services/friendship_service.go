package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

var (
	ErrSelfFriendship     = errors.New("cannot send a friend request to yourself")
	ErrFriendshipExists   = errors.New("friendship already exists")
	ErrFriendshipNotFound = errors.New("friendship not found")
	ErrAccountNotFound    = errors.New("account not found")
)

type FriendshipService struct {
	accountRepo    repositories.AccountRepository
	friendshipRepo repositories.FriendshipRepository
}

func NewFriendshipService(accountRepo repositories.AccountRepository, friendshipRepo repositories.FriendshipRepository) *FriendshipService {
	return &FriendshipService{accountRepo: accountRepo, friendshipRepo: friendshipRepo}
}

// Request creates a pending friendship from requester to the account
// registered under addresseeEmail.
func (s *FriendshipService) Request(ctx context.Context, requester uuid.UUID, addresseeEmail string) (*models.Friendship, error) {
	addressee, err := s.accountRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(addresseeEmail)))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if addressee.ID == requester {
		return nil, ErrSelfFriendship
	}

	friendship := models.NewFriendship(requester, addressee.ID)
	err = s.friendshipRepo.Create(ctx, friendship)
	if errors.Is(err, repositories.ErrConflict) {
		return nil, ErrFriendshipExists
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create friendship: %w", err)
	}
	return friendship, nil
}

func (s *FriendshipService) Accept(ctx context.Context, id, addressee uuid.UUID) (*models.Friendship, error) {
	err := s.friendshipRepo.Accept(ctx, id, addressee)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, ErrFriendshipNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.friendshipRepo.GetByID(ctx, id)
}

func (s *FriendshipService) List(ctx context.Context, accountID uuid.UUID) ([]*models.Friendship, error) {
	return s.friendshipRepo.ListForAccount(ctx, accountID)
}
