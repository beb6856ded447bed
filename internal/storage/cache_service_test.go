package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledger-migrator/internal/models"
	"github.com/ledger-migrator/internal/types"
)

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return NewCacheService(NewRedisCacheWithClient(client), time.Minute), mr
}

func TestCacheService_BackupRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	backup := &models.Backup{
		ID:            "b-1",
		MigrationType: "balance-rebalance",
		CreatedBy:     "op-1",
		Status:        types.BackupCompleted,
		AffectedUsers: []models.AffectedUser{
			{UserID: "u1", Snapshot: models.Patch{"balances.source": 600.0}},
		},
	}

	require.NoError(t, cache.SetBackup(ctx, backup))

	got, err := cache.GetBackup(ctx, "b-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b-1", got.ID)
	assert.Equal(t, types.BackupCompleted, got.Status)
	require.Len(t, got.AffectedUsers, 1)
	assert.Equal(t, 600.0, got.AffectedUsers[0].Snapshot["balances.source"])
}

func TestCacheService_GetBackup_Miss(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.GetBackup(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheService_BackupListRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	backups := []*models.Backup{
		{ID: "b-1", Status: types.BackupCompleted},
		{ID: "b-2", Status: types.BackupPending},
	}

	require.NoError(t, cache.SetBackupList(ctx, 20, backups))

	got, err := cache.GetBackupList(ctx, 20)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b-1", got[0].ID)

	// A listing with a different limit is a separate key.
	other, err := cache.GetBackupList(ctx, 50)
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestCacheService_InvalidateBackup(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetBackup(ctx, &models.Backup{ID: "b-1", Status: types.BackupCompleted}))
	require.NoError(t, cache.SetBackupList(ctx, 20, []*models.Backup{{ID: "b-1"}}))
	require.NoError(t, cache.SetBackupList(ctx, 50, []*models.Backup{{ID: "b-1"}}))

	require.NoError(t, cache.InvalidateBackup(ctx, "b-1"))

	got, err := cache.GetBackup(ctx, "b-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, limit := range []int{20, 50} {
		list, err := cache.GetBackupList(ctx, limit)
		require.NoError(t, err)
		assert.Nil(t, list)
	}
}

func TestCacheService_TTLExpiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCacheService(NewRedisCacheWithClient(client), 10*time.Second)
	ctx := context.Background()

	require.NoError(t, cache.SetBackup(ctx, &models.Backup{ID: "b-1"}))

	mr.FastForward(11 * time.Second)

	got, err := cache.GetBackup(ctx, "b-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
