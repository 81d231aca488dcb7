package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"Bt1QLink/model"

	"github.com/go-redis/redis/v8"
)

const (
	nodeSessionKey = "link:node:%s:session" // String: 节点会话ID
	playerStateKey = "link:player:%s"       // String: 玩家快照 JSON (guildID)
	stateTTL       = 24 * time.Hour
)

// StateCache 持久化节点会话与玩家快照，断线恢复时读取
type StateCache struct {
	client *redis.Client
}

// NewStateCache 创建状态缓存
func NewStateCache() *StateCache {
	return &StateCache{client: RedisClient}
}

// ========== 节点会话 ==========

// GetSession 读取节点上次分配的会话ID，不存在时返回空串
func (c *StateCache) GetSession(ctx context.Context, nodeID string) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("Redis client not initialized")
	}

	val, err := c.client.Get(ctx, fmt.Sprintf(nodeSessionKey, nodeID)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return val, nil
}

// SetSession 保存节点会话ID
func (c *StateCache) SetSession(ctx context.Context, nodeID, sessionID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Set(ctx, fmt.Sprintf(nodeSessionKey, nodeID), sessionID, stateTTL).Err()
}

// DeleteSession 删除节点会话ID
func (c *StateCache) DeleteSession(ctx context.Context, nodeID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Del(ctx, fmt.Sprintf(nodeSessionKey, nodeID)).Err()
}

// ========== 玩家快照 ==========

// GetSnapshot 读取公会的玩家快照，不存在时返回 nil
func (c *StateCache) GetSnapshot(ctx context.Context, guildID string) (*model.PlayerSnapshot, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := c.client.Get(ctx, fmt.Sprintf(playerStateKey, guildID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var snapshot model.PlayerSnapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal player snapshot: %w", err)
	}
	return &snapshot, nil
}

// SetSnapshot 保存公会的玩家快照
func (c *StateCache) SetSnapshot(ctx context.Context, snapshot *model.PlayerSnapshot) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal player snapshot: %w", err)
	}
	return c.client.Set(ctx, fmt.Sprintf(playerStateKey, snapshot.GuildID), data, stateTTL).Err()
}

// DeleteSnapshot 删除公会的玩家快照
func (c *StateCache) DeleteSnapshot(ctx context.Context, guildID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Del(ctx, fmt.Sprintf(playerStateKey, guildID)).Err()
}
