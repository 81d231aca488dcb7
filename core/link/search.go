package link

import (
	"context"
	"encoding/json"

	"Bt1QLink/logger"
)

// SearchCache caches raw load-result payloads keyed by identifier. A nil
// payload with nil error means a miss.
type SearchCache interface {
	GetLoadResult(ctx context.Context, identifier string) ([]byte, error)
	SetLoadResult(ctx context.Context, identifier string, payload []byte) error
}

// WithSearchCache 注入搜索缓存，不注入则每次都请求节点
func WithSearchCache(c SearchCache) ManagerOption {
	return func(m *Manager) {
		m.searchCache = c
	}
}

// LoadTracks resolves an identifier through the node, consulting the
// search cache first. Cache failures degrade to a node round trip.
func (m *Manager) LoadTracks(ctx context.Context, n *Node, identifier string) (*LoadResult, error) {
	if m.searchCache != nil {
		payload, err := m.searchCache.GetLoadResult(ctx, identifier)
		if err != nil {
			logger.Warn("search cache lookup failed",
				logger.String("identifier", identifier),
				logger.ErrorField(err))
		} else if payload != nil {
			var result LoadResult
			if err := json.Unmarshal(payload, &result); err == nil {
				return &result, nil
			}
			logger.Warn("discarding corrupt search cache entry",
				logger.String("identifier", identifier))
		}
	}

	result, err := n.Rest().LoadTracks(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if m.searchCache != nil {
		if payload, err := json.Marshal(result); err == nil {
			if err := m.searchCache.SetLoadResult(ctx, identifier, payload); err != nil {
				logger.Warn("failed to cache load result",
					logger.String("identifier", identifier),
					logger.ErrorField(err))
			}
		}
	}
	return result, nil
}
