//go:build integration

package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/abilitysystem/internal/abilitysystem"
	"github.com/udisondev/abilitysystem/internal/db"
	"github.com/udisondev/abilitysystem/internal/testutil"
)

func TestPostgresStore_SaveLoad(t *testing.T) {
	pool := testutil.SetupTestDB(t)
	store := db.NewPostgresStore(pool)
	ctx := context.Background()

	snap := db.Snapshot{
		OwnerID:   uuid.New(),
		OwnerName: "hero",
		SavedAt:   time.Now().UTC().Truncate(time.Millisecond),
		Effects: []abilitysystem.SavedEffect{
			{Definition: "Haste", Level: 1, StackCount: 2, Remaining: 6},
		},
	}
	require.NoError(t, store.Save(ctx, snap))

	got, err := store.Load(ctx, snap.OwnerID)
	require.NoError(t, err)
	assert.Equal(t, snap.OwnerName, got.OwnerName)
	assert.Equal(t, snap.Effects, got.Effects)
	assert.True(t, snap.SavedAt.Equal(got.SavedAt))

	snap.Effects = nil
	require.NoError(t, store.Save(ctx, snap))
	got, err = store.Load(ctx, snap.OwnerID)
	require.NoError(t, err)
	assert.Empty(t, got.Effects)

	_, err = store.Load(ctx, uuid.New())
	assert.ErrorIs(t, err, db.ErrSnapshotNotFound)
}
