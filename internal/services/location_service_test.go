package services

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prudhvinik1/homepresence/internal/models"
	"github.com/prudhvinik1/homepresence/internal/repositories/repotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationService_PutNormalizesAndUpserts(t *testing.T) {
	svc := NewLocationService(repotest.NewLocationBindings())
	ctx := context.Background()
	owner := uuid.New()

	// ACT
	first, err := svc.Put(ctx, owner, &models.LocationBinding{AccessPointID: "AA:BB:CC:DD:EE:FF", DisplayName: " Home "})
	require.NoError(t, err)
	second, err := svc.Put(ctx, owner, &models.LocationBinding{AccessPointID: "aa:bb:cc:dd:ee:ff", DisplayName: "Home 2", IconID: "ic_house"})
	require.NoError(t, err)

	// ASSERT
	assert.Equal(t, first.ID, second.ID, "same access point updates the existing binding")
	bindings, err := svc.List(ctx, owner)
	require.NoError(t, err)
	require.Len(t, bindings, 1)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", bindings[0].AccessPointID)
	assert.Equal(t, "Home 2", bindings[0].DisplayName)
	assert.Equal(t, "ic_house", bindings[0].IconID)
	assert.Equal(t, models.DefaultColorHex, bindings[0].ColorHex)
}

func TestLocationService_PutRejectsPlaceholders(t *testing.T) {
	svc := NewLocationService(repotest.NewLocationBindings())
	ctx := context.Background()

	for _, ap := range []string{"", "02:00:00:00:00:00", "<unknown bssid>", "not-a-mac"} {
		_, err := svc.Put(ctx, uuid.New(), &models.LocationBinding{AccessPointID: ap, DisplayName: "Home"})
		assert.ErrorIs(t, err, ErrInvalidBinding, ap)
	}

	_, err := svc.Put(ctx, uuid.New(), &models.LocationBinding{AccessPointID: "aa:bb:cc:dd:ee:ff"})
	assert.ErrorIs(t, err, ErrInvalidBinding)
}

func TestLocationService_DeleteIsOwnerScoped(t *testing.T) {
	svc := NewLocationService(repotest.NewLocationBindings())
	ctx := context.Background()
	owner := uuid.New()

	b, err := svc.Put(ctx, owner, &models.LocationBinding{AccessPointID: "aa:bb:cc:dd:ee:ff", DisplayName: "Home"})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, uuid.New(), b.ID), ErrBindingNotFound)
	require.NoError(t, svc.Delete(ctx, owner, b.ID))

	bindings, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, bindings)
}

func TestLocationService_PutRejectsOversizedDisplayFields(t *testing.T) {
	bindings := repotest.NewLocationBindings()
	svc := NewLocationService(bindings)
	ctx := context.Background()
	owner := uuid.New()

	tests := []struct {
		name    string
		binding models.LocationBinding
	}{
		{"long name", models.LocationBinding{DisplayName: strings.Repeat("x", 8000)}},
		{"long icon", models.LocationBinding{DisplayName: "Home", IconID: strings.Repeat("i", models.MaxIconIDLength+1)}},
		{"long color", models.LocationBinding{DisplayName: "Home", ColorHex: strings.Repeat("#", models.MaxColorHexLength+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.binding
			b.AccessPointID = "aa:bb:cc:dd:ee:ff"

			_, err := svc.Put(ctx, owner, &b)

			assert.ErrorIs(t, err, ErrInvalidBinding)
		})
	}

	// ASSERT: nothing was stored, and a name at the limit is accepted
	list, err := svc.List(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = svc.Put(ctx, owner, &models.LocationBinding{
		AccessPointID: "aa:bb:cc:dd:ee:ff",
		DisplayName:   strings.Repeat("é", models.MaxDisplayNameLength),
	})
	require.NoError(t, err)
}
