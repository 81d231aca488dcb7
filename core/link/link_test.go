package link

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/model"

	"github.com/stretchr/testify/require"
)

// memoryStore 测试用的内存状态存储
type memoryStore struct {
	mu        sync.Mutex
	sessions  map[string]string
	snapshots map[string]*model.PlayerSnapshot
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		sessions:  make(map[string]string),
		snapshots: make(map[string]*model.PlayerSnapshot),
	}
}

func (s *memoryStore) GetSession(ctx context.Context, nodeID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[nodeID], nil
}

func (s *memoryStore) SetSession(ctx context.Context, nodeID, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[nodeID] = sessionID
	return nil
}

func (s *memoryStore) DeleteSession(ctx context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, nodeID)
	return nil
}

func (s *memoryStore) GetSnapshot(ctx context.Context, guildID string) (*model.PlayerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots[guildID], nil
}

func (s *memoryStore) SetSnapshot(ctx context.Context, snapshot *model.PlayerSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshot.GuildID] = snapshot
	return nil
}

func (s *memoryStore) DeleteSnapshot(ctx context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, guildID)
	return nil
}

func testNodeConfig(id string) config.NodeConfig {
	return config.NodeConfig{
		ID:       id,
		Host:     "127.0.0.1",
		Port:     2333,
		Password: "youshallnotpass",
	}
}

func newTestManager(t *testing.T, nodes ...config.NodeConfig) *Manager {
	t.Helper()
	if len(nodes) == 0 {
		nodes = []config.NodeConfig{testNodeConfig("main")}
	}
	cfg := &config.Config{
		UserID:         "100000000000000000",
		ClientName:     "Bt1QLink/test",
		Nodes:          nodes,
		ReconnectDelay: time.Hour,
		ReconnectTries: 3,
	}
	m, err := NewManager(cfg, newMemoryStore(), func(guildID, channelID string, selfMute, selfDeaf bool) error {
		return nil
	})
	require.NoError(t, err)
	// 测试里不自动触发 REST 调用
	m.playNextOnEnd = false
	return m
}

func testTrack(id string) *model.Track {
	return &model.Track{
		Encoded: "enc-" + id,
		Info: model.TrackInfo{
			Identifier: id,
			Title:      "title-" + id,
			Author:     "author-" + id,
			Length:     180000,
			URI:        fmt.Sprintf("https://www.youtube.com/watch?v=%s", id),
			SourceName: "youtube",
		},
	}
}

func testItem(id string) model.QueueItem {
	return model.NewTrackItem(testTrack(id))
}
