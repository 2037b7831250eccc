// Package statuscache keeps the receiving device's view of its friends'
// presence, fed by presence pushes.
package statuscache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
)

// Cache merges presence pushes into the local friend status store. An
// entry is replaced by any push that is not older than it: when both
// carry a version the lower one loses, otherwise the last push wins.
type Cache struct {
	store  repositories.FriendStatusStore
	now    func() time.Time
	logger *slog.Logger

	// serializes read-compare-write per process
	mu sync.Mutex
}

func New(store repositories.FriendStatusStore, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{store: store, now: time.Now, logger: logger}
}

// OnPushReceived handles one push payload. Payloads of another type or
// without a usable owner id are ignored.
func (c *Cache) OnPushReceived(ctx context.Context, data map[string]string) {
	payload := models.PresencePayloadFromData(data)
	if payload.Type != models.PushTypeFriendStatusUpdate {
		c.logger.Debug("ignoring push", "type", payload.Type)
		return
	}

	entry, err := c.entryFromPayload(payload)
	if err != nil {
		c.logger.Debug("ignoring malformed presence push", "error", err)
		return
	}

	if _, err := c.Apply(ctx, entry); err != nil {
		c.logger.Warn("failed to store friend status", "friend_id", entry.FriendID, "error", err)
	}
}

// Apply stores entry unless the cached entry has a higher version. It
// reports whether entry was stored.
func (c *Cache) Apply(ctx context.Context, entry *models.FriendStatusEntry) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.store.Get(ctx, entry.FriendID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("failed to read friend status: %w", err)
	case current.Version > 0 && entry.Version > 0 && entry.Version < current.Version:
		c.logger.Debug("dropping stale presence push",
			"friend_id", entry.FriendID,
			"version", entry.Version,
			"cached_version", current.Version,
		)
		return false, nil
	}

	if err := c.store.Upsert(ctx, entry); err != nil {
		return false, fmt.Errorf("failed to write friend status: %w", err)
	}
	return true, nil
}

// Seed merges statuses fetched from the server, e.g. after the device was
// offline and missed pushes.
func (c *Cache) Seed(ctx context.Context, records []*models.StatusRecord) error {
	for _, record := range records {
		entry := &models.FriendStatusEntry{
			FriendID:              record.OwnerID,
			LocationName:          deref(record.LocationName),
			AccessPointID:         deref(record.AccessPointID),
			IsOnline:              record.IsAtKnownLocation,
			IconID:                deref(record.IconID),
			ColorHex:              deref(record.ColorHex),
			Version:               record.Version,
			Timestamp:             record.UpdatedAt.UTC().Format(time.RFC3339Nano),
			ReceivedAtEpochMillis: c.now().UnixMilli(),
		}
		if _, err := c.Apply(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cache) List(ctx context.Context) ([]*models.FriendStatusEntry, error) {
	return c.store.List(ctx)
}

func (c *Cache) entryFromPayload(p models.PresencePayload) (*models.FriendStatusEntry, error) {
	if strings.TrimSpace(p.UpdatedUserID) == "" {
		return nil, errors.New("missing updatedUserId")
	}
	friendID, err := uuid.Parse(p.UpdatedUserID)
	if err != nil {
		return nil, fmt.Errorf("invalid updatedUserId: %w", err)
	}

	var version int64
	if p.Version != "" {
		version, err = strconv.ParseInt(p.Version, 10, 64)
		if err != nil || version < 0 {
			return nil, fmt.Errorf("invalid version %q", p.Version)
		}
	}

	online, err := strconv.ParseBool(p.IsOnline)
	if err != nil {
		online = false
	}

	return &models.FriendStatusEntry{
		FriendID:              friendID,
		LocationName:          p.LocationName,
		AccessPointID:         p.Bssid,
		IsOnline:              online,
		IconID:                p.IconID,
		ColorHex:              p.ColorHex,
		Version:               version,
		Timestamp:             p.Timestamp,
		ReceivedAtEpochMillis: c.now().UnixMilli(),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
