package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// searchKeyFormat 识别符到加载结果的缓存键
	searchKeyFormat = "link:search:%s"

	// searchTTL 搜索结果缓存时间
	searchTTL = 30 * time.Minute
)

// SearchCache caches raw node load results by identifier so repeated
// lookups for the same query skip the round trip to the node.
type SearchCache struct {
	client *redis.Client
}

// NewSearchCache 基于全局 Redis 连接创建搜索缓存
func NewSearchCache() *SearchCache {
	return &SearchCache{client: RedisClient}
}

// GetLoadResult returns the cached payload for an identifier, nil on miss.
func (c *SearchCache) GetLoadResult(ctx context.Context, identifier string) ([]byte, error) {
	key := fmt.Sprintf(searchKeyFormat, identifier)
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get load result for %s: %w", identifier, err)
	}
	return data, nil
}

// SetLoadResult caches the payload for an identifier.
func (c *SearchCache) SetLoadResult(ctx context.Context, identifier string, payload []byte) error {
	key := fmt.Sprintf(searchKeyFormat, identifier)
	if err := c.client.Set(ctx, key, payload, searchTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache load result for %s: %w", identifier, err)
	}
	return nil
}
