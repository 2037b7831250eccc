package presence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

const lastReportedKey = "presence.last_reported"

// SnapshotStore keeps the last reported snapshot in the device key/value
// store.
type SnapshotStore struct {
	kv repositories.KeyValueStore
}

func NewSnapshotStore(kv repositories.KeyValueStore) *SnapshotStore {
	return &SnapshotStore{kv: kv}
}

// Load returns nil when nothing was reported yet.
func (s *SnapshotStore) Load(ctx context.Context) (*models.LastReportedSnapshot, error) {
	data, ok, err := s.kv.Get(ctx, lastReportedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var snapshot models.LastReportedSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snapshot *models.LastReportedSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := s.kv.Set(ctx, lastReportedKey, data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Clear forgets the snapshot so the next evaluation reports
// unconditionally. Used on sign-out.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, lastReportedKey)
}
