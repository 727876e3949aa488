package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fulfillment/backoffice/internal/domain/ordersync"
)

func activeStore(code string) *ordersync.StoreCredential {
	return &ordersync.StoreCredential{
		ID:         uuid.New(),
		Code:       code,
		Name:       "Store " + code,
		APIBaseURL: "https://" + code + ".example.test",
		APIToken:   "tok-" + code,
		Active:     true,
	}
}

func TestStoreRepository(t *testing.T) {
	db := setupOrderTestDB(t)
	repo := NewGormStoreRepository(db)
	ctx := context.Background()

	t.Run("lists only active stores in code order", func(t *testing.T) {
		require.NoError(t, repo.Save(ctx, activeStore("beta")))
		require.NoError(t, repo.Save(ctx, activeStore("alpha")))

		paused := activeStore("paused")
		paused.Active = false
		require.NoError(t, repo.Save(ctx, paused))

		stores, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 2)
		assert.Equal(t, "alpha", stores[0].Code)
		assert.Equal(t, "beta", stores[1].Code)
	})

	t.Run("finds a store by code", func(t *testing.T) {
		found, err := repo.FindByCode(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, "Store alpha", found.Name)
		assert.Equal(t, "tok-alpha", found.APIToken)
	})

	t.Run("unknown code is not configured", func(t *testing.T) {
		_, err := repo.FindByCode(ctx, "ghost")
		assert.ErrorIs(t, err, ordersync.ErrStoreNotConfigured)
	})

	t.Run("save rejects an invalid credential", func(t *testing.T) {
		bad := activeStore("bad")
		bad.APIToken = ""
		err := repo.Save(ctx, bad)
		assert.Error(t, err)
	})

	t.Run("resaving updates in place", func(t *testing.T) {
		found, err := repo.FindByCode(ctx, "beta")
		require.NoError(t, err)
		found.Name = "Renamed"
		require.NoError(t, repo.Save(ctx, found))

		again, err := repo.FindByCode(ctx, "beta")
		require.NoError(t, err)
		assert.Equal(t, "Renamed", again.Name)

		stores, err := repo.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, stores, 2)
	})
}
