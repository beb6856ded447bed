package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ledger-migrator/internal/models"
	"github.com/redis/go-redis/v9"
)

// CacheService caches backup reads for the operator API. Cache misses and
// Redis errors both fall through to the database; a rollback invalidates the
// affected keys so the operator UI never shows a stale status for long.
type CacheService struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewCacheService creates a new cache service
func NewCacheService(redis *RedisCache, ttl time.Duration) *CacheService {
	return &CacheService{
		redis: redis,
		ttl:   ttl,
	}
}

const (
	backupKeyPrefix = "backup:"
	backupListKey   = "backups:list"
)

// BackupKey generates the cache key for a single backup
func BackupKey(backupID string) string {
	return backupKeyPrefix + backupID
}

// GetBackup returns a cached backup, or nil on a miss.
func (c *CacheService) GetBackup(ctx context.Context, backupID string) (*models.Backup, error) {
	data, err := c.redis.Get(ctx, BackupKey(backupID))
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup cache: %w", err)
	}

	var backup models.Backup
	if err := json.Unmarshal([]byte(data), &backup); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached backup: %w", err)
	}

	return &backup, nil
}

// SetBackup caches a single backup with the configured TTL.
func (c *CacheService) SetBackup(ctx context.Context, backup *models.Backup) error {
	data, err := json.Marshal(backup)
	if err != nil {
		return fmt.Errorf("failed to marshal backup for cache: %w", err)
	}

	return c.redis.Set(ctx, BackupKey(backup.ID), data, c.ttl)
}

// GetBackupList returns the cached backup listing, or nil on a miss.
func (c *CacheService) GetBackupList(ctx context.Context, limit int) ([]*models.Backup, error) {
	data, err := c.redis.Get(ctx, fmt.Sprintf("%s:%d", backupListKey, limit))
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup list cache: %w", err)
	}

	var backups []*models.Backup
	if err := json.Unmarshal([]byte(data), &backups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached backup list: %w", err)
	}

	return backups, nil
}

// SetBackupList caches a backup listing with the configured TTL.
func (c *CacheService) SetBackupList(ctx context.Context, limit int, backups []*models.Backup) error {
	data, err := json.Marshal(backups)
	if err != nil {
		return fmt.Errorf("failed to marshal backup list for cache: %w", err)
	}

	return c.redis.Set(ctx, fmt.Sprintf("%s:%d", backupListKey, limit), data, c.ttl)
}

// InvalidateBackup drops a backup and all listings from the cache. Called
// after a run creates a backup or a rollback changes a status.
func (c *CacheService) InvalidateBackup(ctx context.Context, backupID string) error {
	keys := []string{BackupKey(backupID)}

	iter := c.redis.Client().Scan(ctx, 0, backupListKey+":*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan backup list keys: %w", err)
	}

	return c.redis.Del(ctx, keys...)
}
