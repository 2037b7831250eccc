package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/presence"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

const credentialsKey = "agent.credentials"

// Credentials is the signed-in session of this device.
type Credentials struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	AccountID uuid.UUID `json:"account_id"`
	DeviceID  uuid.UUID `json:"device_id"`
}

// CredentialStore keeps Credentials in the device-local key/value store
// and doubles as the reporter's identity provider.
type CredentialStore struct {
	kv  repositories.KeyValueStore
	now func() time.Time
}

func NewCredentialStore(kv repositories.KeyValueStore) *CredentialStore {
	return &CredentialStore{kv: kv, now: time.Now}
}

// Load returns presence.ErrUnauthenticated when nobody is signed in or the
// stored token has expired.
func (s *CredentialStore) Load(ctx context.Context) (*Credentials, error) {
	raw, ok, err := s.kv.Get(ctx, credentialsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	if !ok {
		return nil, presence.ErrUnauthenticated
	}
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return nil, fmt.Errorf("%w: corrupt credentials: %v", presence.ErrUnauthenticated, err)
	}
	if creds.Token == "" || (!creds.ExpiresAt.IsZero() && !s.now().Before(creds.ExpiresAt)) {
		return nil, presence.ErrUnauthenticated
	}
	return &creds, nil
}

func (s *CredentialStore) Save(ctx context.Context, creds *Credentials) error {
	raw, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := s.kv.Set(ctx, credentialsKey, raw); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *CredentialStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, credentialsKey)
}

func (s *CredentialStore) CurrentUserID(ctx context.Context) (uuid.UUID, error) {
	creds, err := s.Load(ctx)
	if err != nil {
		return uuid.Nil, err
	}
	return creds.AccountID, nil
}

var _ presence.IdentityProvider = (*CredentialStore)(nil)
