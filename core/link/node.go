package link

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/logger"

	"github.com/gorilla/websocket"
)

// NodeState 节点连接状态
type NodeState string

const (
	NodeDisconnected NodeState = "DISCONNECTED"
	NodeConnecting   NodeState = "CONNECTING"
	NodeConnected    NodeState = "CONNECTED"
)

// closeReasonDestroy 哨兵关闭原因，close 回调看到它不再触发重连
const closeReasonDestroy = "destroy"

// Node owns the long-lived socket to one remote audio node: connect,
// bounded reconnect, stats ingestion and frame dispatch.
type Node struct {
	cfg  config.NodeConfig
	mgr  *Manager
	rest *RestClient

	mu             sync.RWMutex
	conn           *websocket.Conn
	state          NodeState
	sessionID      string
	stats          Stats
	reconnects     int
	reconnectTimer *time.Timer
	destroyed      bool
}

func newNode(mgr *Manager, cfg config.NodeConfig) *Node {
	return &Node{
		cfg:   cfg,
		mgr:   mgr,
		rest:  NewRestClient(cfg),
		state: NodeDisconnected,
	}
}

// ID 节点唯一标识
func (n *Node) ID() string {
	return n.cfg.ID
}

// Config 节点配置副本
func (n *Node) Config() config.NodeConfig {
	return n.cfg
}

// State 当前连接状态
func (n *Node) State() NodeState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// SessionID 节点本次连接分配的会话ID
func (n *Node) SessionID() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.sessionID
}

// Stats 最近一次上报的统计快照
func (n *Node) Stats() Stats {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.stats
}

// Rest 节点 REST 客户端
func (n *Node) Rest() *RestClient {
	return n.rest
}

// Connect opens the node socket. A node that is already connected or
// connecting is left alone.
func (n *Node) Connect() error {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return fmt.Errorf("node %s is destroyed", n.cfg.ID)
	}
	if n.state != NodeDisconnected {
		n.mu.Unlock()
		return nil
	}
	n.state = NodeConnecting
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
		n.reconnectTimer = nil
	}
	n.mu.Unlock()

	scheme := "ws"
	if n.cfg.Secure {
		scheme = "wss"
	}
	endpoint := fmt.Sprintf("%s://%s:%d/v4/websocket", scheme, n.cfg.Host, n.cfg.Port)

	headers := http.Header{}
	headers.Set("Authorization", n.cfg.Password)
	headers.Set("User-Id", n.mgr.cfg.UserID)
	headers.Set("Client-Name", n.mgr.cfg.ClientName)

	// 开启断线恢复时带上上次持久化的会话ID
	if n.mgr.cfg.ResumeEnabled {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		prev, err := n.mgr.store.GetSession(ctx, n.cfg.ID)
		cancel()
		if err == nil && prev != "" {
			headers.Set("Session-Id", prev)
		}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(endpoint, headers)
	if err != nil {
		n.mu.Lock()
		n.state = NodeDisconnected
		n.mu.Unlock()
		logger.Warn("node dial failed",
			logger.String("node", n.cfg.ID),
			logger.ErrorField(err))
		n.scheduleReconnect()
		return fmt.Errorf("failed to dial node %s: %w", n.cfg.ID, err)
	}

	n.mu.Lock()
	// 握手期间可能已被销毁，此时丢弃新连接
	if n.destroyed {
		n.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("node %s destroyed during handshake", n.cfg.ID)
	}
	n.conn = conn
	n.state = NodeConnected
	n.reconnects = 0
	n.mu.Unlock()

	logger.Info("node connected", logger.String("node", n.cfg.ID))
	n.mgr.bus.EmitNodeConnect(n)

	go n.readLoop(conn)
	return nil
}

// readLoop 读取并按到达顺序分发帧，退出时进入关闭处理
func (n *Node) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			n.handleClose(err)
			return
		}
		n.dispatch(message)
	}
}

// dispatch decodes one inbound frame and routes it by op code. Unknown op
// codes surface as non-fatal node errors.
func (n *Node) dispatch(message []byte) {
	n.mgr.bus.EmitNodeRaw(n, message)

	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		n.mgr.bus.EmitNodeError(n, fmt.Errorf("failed to decode frame: %w", err))
		return
	}

	switch env.Op {
	case opReady:
		n.mu.Lock()
		n.sessionID = env.SessionID
		n.mu.Unlock()
		logger.Info("node ready",
			logger.String("node", n.cfg.ID),
			logger.Bool("resumed", env.Resumed))
		// resume 协调要等 REST 响应，不能阻塞读循环
		go n.mgr.handleReady(n, env.Resumed, env.SessionID)
	case opStats:
		var stats Stats
		if err := json.Unmarshal(message, &stats); err != nil {
			n.mgr.bus.EmitNodeError(n, fmt.Errorf("failed to decode stats: %w", err))
			return
		}
		n.mu.Lock()
		n.stats = stats
		n.mu.Unlock()
	case opPlayerUpdate:
		n.mgr.handlePlayerUpdate(env.GuildID, env.State)
	case opEvent:
		var ev eventPayload
		if err := json.Unmarshal(message, &ev); err != nil {
			n.mgr.bus.EmitNodeError(n, fmt.Errorf("failed to decode event: %w", err))
			return
		}
		n.mgr.handlePlayerEvent(ev)
	default:
		n.mgr.bus.EmitNodeError(n, fmt.Errorf("unknown op code %q", env.Op))
	}
}

// handleClose 套接字关闭处理，只有非正常关闭才进入重连
func (n *Node) handleClose(err error) {
	code := websocket.CloseAbnormalClosure
	reason := ""
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
		reason = ce.Text
	}

	n.mu.Lock()
	destroyed := n.destroyed
	n.conn = nil
	n.state = NodeDisconnected
	n.mu.Unlock()

	logger.Warn("node socket closed",
		logger.String("node", n.cfg.ID),
		logger.Int("code", code),
		logger.String("reason", reason))
	n.mgr.bus.EmitNodeDisconnect(n)

	if destroyed || code == websocket.CloseNormalClosure || reason == closeReasonDestroy {
		return
	}
	n.scheduleReconnect()
}

// scheduleReconnect books the next connect attempt after the fixed delay.
// Hitting the configured ceiling emits one fatal node error and destroys
// the node instead of retrying; a negative ceiling retries forever.
func (n *Node) scheduleReconnect() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.reconnects++
	attempt := n.reconnects
	tries := n.mgr.cfg.ReconnectTries

	if tries >= 0 && attempt >= tries {
		n.mu.Unlock()
		n.mgr.bus.EmitNodeError(n,
			fmt.Errorf("node %s unreachable after %d reconnect attempts", n.cfg.ID, attempt))
		n.Destroy()
		return
	}

	delay := n.mgr.cfg.ReconnectDelay
	n.reconnectTimer = time.AfterFunc(delay, func() {
		_ = n.Connect()
	})
	n.mu.Unlock()

	logger.Info("node reconnect scheduled",
		logger.String("node", n.cfg.ID),
		logger.Int("attempt", attempt),
		logger.Duration("delay", delay))
	n.mgr.bus.EmitNodeReconnect(n, attempt)
}

// Destroy tears the node down: closes its players, closes the socket with
// the destroy sentinel so no reconnect fires, cancels timers and removes
// the node from the manager. Safe to call more than once.
func (n *Node) Destroy() {
	n.mu.Lock()
	if n.destroyed {
		n.mu.Unlock()
		return
	}
	n.destroyed = true
	if n.reconnectTimer != nil {
		n.reconnectTimer.Stop()
		n.reconnectTimer = nil
	}
	conn := n.conn
	n.conn = nil
	n.state = NodeDisconnected
	n.mu.Unlock()

	for _, p := range n.mgr.playersOnNode(n) {
		p.destroyLocal()
	}

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReasonDestroy), deadline)
		_ = conn.Close()
	}

	n.mgr.removeNode(n.cfg.ID)
	logger.Info("node destroyed", logger.String("node", n.cfg.ID))
	n.mgr.bus.EmitNodeDestroy(n)
}
