package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type DeviceRepository interface {
	Create(ctx context.Context, device *models.Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	GetDevicesByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Device, error)
	Update(ctx context.Context, device *models.Device) error
	Revoke(ctx context.Context, id uuid.UUID) error
	SetPushToken(ctx context.Context, id uuid.UUID, token string) error
	ClearPushToken(ctx context.Context, token string) error
}

// PushTargetReader resolves the push target of a user. An empty token
// with a nil error means the user has no target.
type PushTargetReader interface {
	GetPushTarget(ctx context.Context, accountID uuid.UUID) (string, error)
}

type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error
}

// FriendshipReader is the only friendship access the fan-out needs.
type FriendshipReader interface {
	ListAccepted(ctx context.Context, accountID uuid.UUID) ([]*models.Friendship, error)
}

type FriendshipRepository interface {
	FriendshipReader
	Create(ctx context.Context, friendship *models.Friendship) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Friendship, error)
	ListForAccount(ctx context.Context, accountID uuid.UUID) ([]*models.Friendship, error)
	Accept(ctx context.Context, id, addressee uuid.UUID) error
}

type LocationBindingRepository interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.LocationBinding, error)
	Upsert(ctx context.Context, binding *models.LocationBinding) error
	Delete(ctx context.Context, ownerID uuid.UUID, id uuid.UUID) error
}

// StatusRepository stores one StatusRecord per owner with overwrite
// semantics. Upsert returns the record it replaced, nil on first write.
type StatusRepository interface {
	Upsert(ctx context.Context, record *models.StatusRecord) (*models.StatusRecord, error)
	GetByOwner(ctx context.Context, ownerID uuid.UUID) (*models.StatusRecord, error)
}

// StatusCacheRepository is the read model of current status records.
type StatusCacheRepository interface {
	Set(ctx context.Context, record *models.StatusRecord) error
	Get(ctx context.Context, ownerID uuid.UUID) (*models.StatusRecord, error)
	GetBulk(ctx context.Context, ownerIDs []uuid.UUID) (map[uuid.UUID]*models.StatusRecord, error)
}

// KeyValueStore is the device-local key/value store. ok is false for
// missing keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// FriendStatusStore persists received friend statuses on the device.
type FriendStatusStore interface {
	Get(ctx context.Context, friendID uuid.UUID) (*models.FriendStatusEntry, error)
	Upsert(ctx context.Context, entry *models.FriendStatusEntry) error
	List(ctx context.Context) ([]*models.FriendStatusEntry, error)
}
