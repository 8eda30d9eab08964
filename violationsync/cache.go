package violationsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statusCachePrefix = "violation-sync:last:"
	statusCacheTTL    = 7 * 24 * time.Hour
)

// StatusCache keeps the last statistics of every job in Redis. A nil client
// turns every call into a no-op miss.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: statusCacheTTL}
}

func (c *StatusCache) Put(ctx context.Context, job string, stats *SyncRunStatistics) error {
	if c == nil || c.rdb == nil || stats == nil {
		return nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusCachePrefix+job, data, c.ttl).Err()
}

func (c *StatusCache) Get(ctx context.Context, job string) (*SyncRunStatistics, bool, error) {
	if c == nil || c.rdb == nil {
		return nil, false, nil
	}
	data, err := c.rdb.Get(ctx, statusCachePrefix+job).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stats SyncRunStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}
