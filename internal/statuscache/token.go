package statuscache

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/push"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

const pushTokenKey = "push.token"

// DeviceToken returns this device's push token, minting and storing one on
// first use. The token names the device's NATS push subject.
func DeviceToken(ctx context.Context, kv repositories.KeyValueStore) (string, error) {
	raw, ok, err := kv.Get(ctx, pushTokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to read push token: %w", err)
	}
	if ok && push.ValidNATSToken(string(raw)) {
		return string(raw), nil
	}

	token := uuid.NewString()
	if err := kv.Set(ctx, pushTokenKey, []byte(token)); err != nil {
		return "", fmt.Errorf("failed to store push token: %w", err)
	}
	return token, nil
}
