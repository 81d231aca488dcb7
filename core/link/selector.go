package link

import (
	"errors"
	"sort"
)

// ErrNoNodes 没有可用的已连接节点
var ErrNoNodes = errors.New("no connected nodes available")

// ConnectedNodes 返回所有处于已连接状态的节点
func (m *Manager) ConnectedNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var nodes []*Node
	for _, n := range m.nodes {
		if n.State() == NodeConnected {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// LeastUsedNodes 按正在播放的玩家数升序排序已连接节点
func (m *Manager) LeastUsedNodes() []*Node {
	nodes := m.ConnectedNodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Stats().PlayingPlayers < nodes[j].Stats().PlayingPlayers
	})
	return nodes
}

// LeastLoadNodes 按单核 CPU 负载升序排序已连接节点
func (m *Manager) LeastLoadNodes() []*Node {
	nodes := m.ConnectedNodes()
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Stats().Load() < nodes[j].Stats().Load()
	})
	return nodes
}

// BestNode resolves a node for placement: the explicitly requested node when
// given and connected, else the least-loaded connected node.
func (m *Manager) BestNode(preferredID string) (*Node, error) {
	if preferredID != "" {
		if n := m.Node(preferredID); n != nil && n.State() == NodeConnected {
			return n, nil
		}
	}

	nodes := m.LeastLoadNodes()
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}
	return nodes[0], nil
}
