package statuscache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/database"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, repositories.FriendStatusStore) {
	t.Helper()
	pool, err := database.NewSQLitePool(filepath.Join(t.TempDir(), "agent.db"), 1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	store := repositories.NewSQLiteFriendStatusStore(pool)
	cache := New(store, nil)
	cache.now = func() time.Time { return time.UnixMilli(1_750_000_000_000) }
	return cache, store
}

func presencePush(friend uuid.UUID, location, version string) map[string]string {
	p := models.PresencePayload{
		Type:          models.PushTypeFriendStatusUpdate,
		UpdatedUserID: friend.String(),
		LocationName:  location,
		Bssid:         "aa:bb:cc:dd:ee:ff",
		IsOnline:      "true",
		IconID:        "ic_home",
		ColorHex:      "#00FF00",
		Timestamp:     "2026-03-01T09:30:00.000Z",
		Version:       version,
	}
	return p.Data()
}

func TestCache_StoresPresencePush(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	friend := uuid.New()

	// ACT
	cache.OnPushReceived(ctx, presencePush(friend, "Office", "3"))

	// ASSERT
	entry, err := store.Get(ctx, friend)
	require.NoError(t, err)
	assert.Equal(t, "Office", entry.LocationName)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", entry.AccessPointID)
	assert.True(t, entry.IsOnline)
	assert.Equal(t, "ic_home", entry.IconID)
	assert.Equal(t, int64(3), entry.Version)
	assert.Equal(t, int64(1_750_000_000_000), entry.ReceivedAtEpochMillis)
}

func TestCache_IgnoresUnrecognizedAndMalformed(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()

	friend := uuid.New()
	wrongType := presencePush(friend, "Office", "1")
	wrongType[models.PushKeyType] = "CHAT_MESSAGE"

	noOwner := presencePush(friend, "Office", "1")
	delete(noOwner, models.PushKeyUpdatedUserID)

	badOwner := presencePush(friend, "Office", "1")
	badOwner[models.PushKeyUpdatedUserID] = "not-a-uuid"

	badVersion := presencePush(friend, "Office", "x1")

	for _, data := range []map[string]string{wrongType, noOwner, badOwner, badVersion, nil} {
		assert.NotPanics(t, func() { cache.OnPushReceived(ctx, data) })
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCache_RejectsOlderVersion(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	friend := uuid.New()

	// ACT: version 5 arrives, then a delayed version 4
	cache.OnPushReceived(ctx, presencePush(friend, "Gym", "5"))
	cache.OnPushReceived(ctx, presencePush(friend, "Home", "4"))

	// ASSERT
	entry, err := store.Get(ctx, friend)
	require.NoError(t, err)
	assert.Equal(t, "Gym", entry.LocationName)
	assert.Equal(t, int64(5), entry.Version)

	// ACT: a newer one applies
	cache.OnPushReceived(ctx, presencePush(friend, "Home", "6"))

	entry, err = store.Get(ctx, friend)
	require.NoError(t, err)
	assert.Equal(t, "Home", entry.LocationName)
}

func TestCache_LastWriteWinsWithoutVersion(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	friend := uuid.New()

	cache.OnPushReceived(ctx, presencePush(friend, "Gym", "5"))
	cache.OnPushReceived(ctx, presencePush(friend, "Home", ""))

	entry, err := store.Get(ctx, friend)
	require.NoError(t, err)
	assert.Equal(t, "Home", entry.LocationName)
	assert.Zero(t, entry.Version)
}

func TestCache_Seed(t *testing.T) {
	cache, store := newTestCache(t)
	ctx := context.Background()
	friend := uuid.New()
	cache.OnPushReceived(ctx, presencePush(friend, "Gym", "9"))

	other := uuid.New()
	err := cache.Seed(ctx, []*models.StatusRecord{
		{OwnerID: friend, LocationName: models.StringPtr("Home"), IsAtKnownLocation: true, Version: 8},
		{OwnerID: other, Version: 2, UpdatedAt: time.Now()},
	})
	require.NoError(t, err)

	entry, err := store.Get(ctx, friend)
	require.NoError(t, err)
	assert.Equal(t, "Gym", entry.LocationName, "seed never rolls back a newer push")

	entry, err = store.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, entry.IsOnline)
	assert.Equal(t, int64(2), entry.Version)
}
