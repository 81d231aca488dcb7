package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Bt1QLink/config"
	"Bt1QLink/logger"
	"Bt1QLink/repository"
)

// VoiceSendFunc pushes a voice-state change to the chat gateway. channelID
// 为空表示离开语音频道。
type VoiceSendFunc func(guildID, channelID string, selfMute, selfDeaf bool) error

// VoiceState 网关转发的语音状态事件
type VoiceState struct {
	GuildID   string
	ChannelID string
	UserID    string
	SessionID string
}

// VoiceServerUpdate 网关转发的语音服务器事件
type VoiceServerUpdate struct {
	GuildID  string
	Token    string
	Endpoint string
}

// Manager is the root aggregate: it owns every node and player, routes
// gateway voice events to the right player and fans out lifecycle events
// through the bus.
type Manager struct {
	cfg       *config.Config
	store     Store
	bus       *Bus
	history   repository.PlaybackHistoryRepository
	sendVoice VoiceSendFunc

	searchCache SearchCache

	mu      sync.RWMutex
	nodes   map[string]*Node
	players map[string]*Player

	playNextOnEnd bool
}

// ManagerOption 创建 Manager 时的可选配置
type ManagerOption func(*Manager)

// WithHistory 注入播放历史仓库，不注入则不记录历史
func WithHistory(repo repository.PlaybackHistoryRepository) ManagerOption {
	return func(m *Manager) {
		m.history = repo
	}
}

// NewManager validates the configuration and builds the manager with one
// registered node per config entry. Nothing connects until Start.
func NewManager(cfg *config.Config, store Store, sendVoice VoiceSendFunc, opts ...ManagerOption) (*Manager, error) {
	var errs []error
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if cfg.UserID == "" {
		errs = append(errs, errors.New("bot user id is required"))
	}
	if len(cfg.Nodes) == 0 {
		errs = append(errs, errors.New("at least one node is required"))
	}
	if store == nil {
		errs = append(errs, errors.New("state store is required"))
	}
	if sendVoice == nil {
		errs = append(errs, errors.New("voice send func is required"))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid manager configuration: %w", errors.Join(errs...))
	}

	m := &Manager{
		cfg:           cfg,
		store:         store,
		bus:           NewBus(),
		sendVoice:     sendVoice,
		nodes:         make(map[string]*Node),
		players:       make(map[string]*Player),
		playNextOnEnd: cfg.PlayNextOnEnd,
	}
	for _, opt := range opts {
		opt(m)
	}

	for _, nc := range cfg.Nodes {
		n := newNode(m, nc)
		m.nodes[nc.ID] = n
		m.bus.EmitNodeCreate(n)
	}
	return m, nil
}

// Bus 事件总线，调用方在这里注册监听
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Start connects every registered node. Individual dial failures do not
// abort startup, the reconnect schedule keeps retrying them.
func (m *Manager) Start() {
	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	for _, n := range nodes {
		if err := n.Connect(); err != nil {
			logger.Warn("initial node connect failed",
				logger.String("node", n.ID()),
				logger.ErrorField(err))
		}
	}
}

// Shutdown 销毁全部玩家与节点连接
func (m *Manager) Shutdown() {
	m.mu.RLock()
	nodes := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		nodes = append(nodes, n)
	}
	m.mu.RUnlock()

	for _, n := range nodes {
		n.Destroy()
	}
	logger.Info("link manager stopped")
}

// ========== 节点管理 ==========

// Node 按标识取节点，不存在返回 nil
func (m *Manager) Node(id string) *Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nodes[id]
}

// Nodes 当前全部节点
func (m *Manager) Nodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out
}

// AddNode registers and connects a new node. Adding an id that already
// exists is an error, remove it first.
func (m *Manager) AddNode(nc config.NodeConfig) (*Node, error) {
	if err := nc.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, ok := m.nodes[nc.ID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("node %s already exists", nc.ID)
	}
	n := newNode(m, nc)
	m.nodes[nc.ID] = n
	m.mu.Unlock()

	m.bus.EmitNodeCreate(n)
	if err := n.Connect(); err != nil {
		logger.Warn("node connect failed",
			logger.String("node", nc.ID),
			logger.ErrorField(err))
	}
	return n, nil
}

// RemoveNode moves the node's players elsewhere before tearing the node
// down, so playback survives topology changes where possible.
func (m *Manager) RemoveNode(ctx context.Context, id string) error {
	n := m.Node(id)
	if n == nil {
		return fmt.Errorf("node %s not found", id)
	}

	for _, p := range m.playersOnNode(n) {
		if err := p.MoveNode(ctx, ""); err != nil {
			logger.Warn("failed to evacuate player from node",
				logger.String("node", id),
				logger.String("guild", p.GuildID()),
				logger.ErrorField(err))
		}
	}

	n.Destroy()
	return nil
}

// ReloadNodes reconciles the node set against a freshly parsed list:
// new ids are added, missing ids are drained and removed, existing ids
// keep their live connection untouched.
func (m *Manager) ReloadNodes(configs []config.NodeConfig) {
	wanted := make(map[string]config.NodeConfig, len(configs))
	for _, nc := range configs {
		wanted[nc.ID] = nc
	}

	m.mu.RLock()
	existing := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		existing = append(existing, id)
	}
	m.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	for _, id := range existing {
		if _, ok := wanted[id]; !ok {
			if err := m.RemoveNode(ctx, id); err != nil {
				logger.Warn("failed to remove node on reload",
					logger.String("node", id),
					logger.ErrorField(err))
			}
		}
	}
	for id, nc := range wanted {
		if m.Node(id) != nil {
			continue
		}
		if _, err := m.AddNode(nc); err != nil {
			logger.Warn("failed to add node on reload",
				logger.String("node", id),
				logger.ErrorField(err))
		}
	}
	logger.Info("node list reloaded", logger.Int("nodes", len(wanted)))
}

// removeNode 节点销毁路径的注销回调
func (m *Manager) removeNode(id string) {
	m.mu.Lock()
	delete(m.nodes, id)
	m.mu.Unlock()
}

// playersOnNode 当前落在该节点上的玩家
func (m *Manager) playersOnNode(n *Node) []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Player
	for _, p := range m.players {
		if p.Node() == n {
			out = append(out, p)
		}
	}
	return out
}

// handleRestError inspects REST failures for signs the node lost our
// session. A 404 on a player route means the remote session is gone: the
// socket is torn down and re-dialed so the handshake re-establishes it.
func (m *Manager) handleRestError(n *Node, err error) {
	if !errors.Is(err, ErrNotFound) {
		return
	}
	logger.Warn("node lost our session, recycling connection",
		logger.String("node", n.ID()))

	cfg := n.Config()

	// 先把玩家疏散到其它在线节点，疏散不了的随节点销毁
	var target *Node
	for _, cand := range m.LeastLoadNodes() {
		if cand.ID() != cfg.ID {
			target = cand
			break
		}
	}
	if target != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		for _, p := range m.playersOnNode(n) {
			if merr := p.MoveNode(ctx, target.ID()); merr != nil {
				logger.Warn("failed to evacuate player from node",
					logger.String("node", cfg.ID),
					logger.String("guild", p.GuildID()),
					logger.ErrorField(merr))
			}
		}
		cancel()
	}

	n.Destroy()
	if _, aerr := m.AddNode(cfg); aerr != nil {
		logger.Error("failed to recycle node",
			logger.String("node", cfg.ID),
			logger.ErrorField(aerr))
	}
}

// ========== 玩家管理 ==========

// Player 按公会取玩家，不存在返回 nil
func (m *Manager) Player(guildID string) *Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.players[guildID]
}

// Players 当前全部玩家
func (m *Manager) Players() []*Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	return out
}

// CreatePlayer builds the guild's player, joins the voice channel and emits
// PlayerCreate. Creating twice for one guild returns the existing player.
func (m *Manager) CreatePlayer(opts PlayerOptions) (*Player, error) {
	if opts.GuildID == "" {
		return nil, errors.New("guild id is required")
	}
	if existing := m.Player(opts.GuildID); existing != nil {
		return existing, nil
	}

	node, err := m.BestNode(opts.NodeID)
	if err != nil {
		return nil, err
	}

	p := m.trackPlayer(node, opts)
	if p == nil {
		// 并发创建时让先注册的一方胜出
		return m.Player(opts.GuildID), nil
	}

	if opts.VoiceChannelID != "" {
		if err := p.Connect(opts.VoiceChannelID); err != nil {
			p.destroyLocal()
			return nil, err
		}
	}
	m.bus.EmitPlayerCreate(p)
	return p, nil
}

// DestroyPlayer 销毁公会的玩家，玩家不存在时为空操作
func (m *Manager) DestroyPlayer(ctx context.Context, guildID string) error {
	p := m.Player(guildID)
	if p == nil {
		return nil
	}
	return p.Destroy(ctx)
}

// trackPlayer registers a player under its guild without side effects.
// Returns nil when the guild already has one.
func (m *Manager) trackPlayer(n *Node, opts PlayerOptions) *Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.players[opts.GuildID]; ok {
		return nil
	}
	p := newPlayer(m, n, opts)
	m.players[opts.GuildID] = p
	return p
}

// removePlayer 玩家销毁路径的注销回调
func (m *Manager) removePlayer(guildID string) {
	m.mu.Lock()
	delete(m.players, guildID)
	m.mu.Unlock()
}

// ========== 网关语音事件 ==========

// HandleVoiceStateUpdate consumes the gateway's voice-state event for our
// own user: channel moves, forced disconnects and the voice session id the
// node needs for its own voice connection.
func (m *Manager) HandleVoiceStateUpdate(vs VoiceState) {
	if vs.UserID != m.cfg.UserID {
		return
	}
	p := m.Player(vs.GuildID)
	if p == nil {
		return
	}

	p.mu.Lock()
	oldChannel := p.voiceChannelID
	if vs.ChannelID == "" {
		p.voiceChannelID = ""
		p.state = PlayerDisconnected
		p.playing = false
		p.voice = VoiceServer{}
		p.mu.Unlock()
		m.bus.EmitPlayerDisconnect(p, oldChannel)
		return
	}

	p.voiceChannelID = vs.ChannelID
	p.voice.SessionID = vs.SessionID
	moved := oldChannel != "" && oldChannel != vs.ChannelID
	p.mu.Unlock()

	if moved {
		m.bus.EmitPlayerMove(p, oldChannel, vs.ChannelID)
	}
	p.saveSnapshot()
	m.pushVoice(p)
}

// HandleVoiceServerUpdate consumes the gateway's voice-server event and
// forwards the credentials to the player's node once complete.
func (m *Manager) HandleVoiceServerUpdate(vsu VoiceServerUpdate) {
	p := m.Player(vsu.GuildID)
	if p == nil {
		return
	}

	p.mu.Lock()
	p.voice.Token = vsu.Token
	p.voice.Endpoint = vsu.Endpoint
	p.mu.Unlock()

	m.pushVoice(p)
}

// pushVoice sends the player's voice credentials to its node when all
// three pieces have arrived. Earlier calls are no-ops.
func (m *Manager) pushVoice(p *Player) {
	p.mu.Lock()
	voice := p.voice
	node := p.node
	if !voice.Complete() || node == nil {
		p.mu.Unlock()
		return
	}
	if p.state == PlayerConnecting {
		p.state = PlayerConnected
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := node.Rest().UpdatePlayer(ctx, node.SessionID(), p.guildID,
		PlayerUpdate{Voice: &voice}, false); err != nil {
		logger.Error("failed to push voice credentials",
			logger.String("guild", p.guildID),
			logger.String("node", node.ID()),
			logger.ErrorField(err))
		m.handleRestError(node, err)
	}
}
