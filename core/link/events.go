package link

import (
	"sync"

	"Bt1QLink/model"
)

// TrackEndReason 节点上报的曲目结束原因
type TrackEndReason string

const (
	ReasonFinished   TrackEndReason = "finished"
	ReasonLoadFailed TrackEndReason = "loadFailed"
	ReasonStopped    TrackEndReason = "stopped"
	ReasonReplaced   TrackEndReason = "replaced"
	ReasonCleanup    TrackEndReason = "cleanup"
)

// TrackException 曲目异常详情
type TrackException struct {
	Message  string `json:"message"`
	Severity string `json:"severity"`
	Cause    string `json:"cause"`
}

// Bus is the typed event bus. Each event kind has one registration method
// and one emit method, so payload shapes are checked at compile time.
// Handlers run synchronously in registration order.
type Bus struct {
	mu sync.RWMutex

	nodeCreate     []func(*Node)
	nodeDestroy    []func(*Node)
	nodeConnect    []func(*Node)
	nodeReconnect  []func(*Node, int)
	nodeDisconnect []func(*Node)
	nodeError      []func(*Node, error)
	nodeRaw        []func(*Node, []byte)

	playerCreate     []func(*Player)
	playerDestroy    []func(*Player)
	playerMove       []func(*Player, string, string)
	playerDisconnect []func(*Player, string)

	trackStart []func(*Player, *model.Track)
	trackEnd   []func(*Player, *model.Track, TrackEndReason)
	trackStuck []func(*Player, *model.Track, int64)
	trackError []func(*Player, *model.Track, TrackException)

	queueEnd     []func(*Player)
	socketClosed []func(*Player, int, string, bool)
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{}
}

// ========== 节点事件 ==========

func (b *Bus) OnNodeCreate(fn func(*Node)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeCreate = append(b.nodeCreate, fn)
}

func (b *Bus) EmitNodeCreate(n *Node) {
	b.mu.RLock()
	handlers := b.nodeCreate
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

func (b *Bus) OnNodeDestroy(fn func(*Node)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeDestroy = append(b.nodeDestroy, fn)
}

func (b *Bus) EmitNodeDestroy(n *Node) {
	b.mu.RLock()
	handlers := b.nodeDestroy
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

func (b *Bus) OnNodeConnect(fn func(*Node)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeConnect = append(b.nodeConnect, fn)
}

func (b *Bus) EmitNodeConnect(n *Node) {
	b.mu.RLock()
	handlers := b.nodeConnect
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

// OnNodeReconnect 注册重连事件，第二个参数是当前重试次数
func (b *Bus) OnNodeReconnect(fn func(*Node, int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeReconnect = append(b.nodeReconnect, fn)
}

func (b *Bus) EmitNodeReconnect(n *Node, attempt int) {
	b.mu.RLock()
	handlers := b.nodeReconnect
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n, attempt)
	}
}

func (b *Bus) OnNodeDisconnect(fn func(*Node)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeDisconnect = append(b.nodeDisconnect, fn)
}

func (b *Bus) EmitNodeDisconnect(n *Node) {
	b.mu.RLock()
	handlers := b.nodeDisconnect
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n)
	}
}

func (b *Bus) OnNodeError(fn func(*Node, error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeError = append(b.nodeError, fn)
}

func (b *Bus) EmitNodeError(n *Node, err error) {
	b.mu.RLock()
	handlers := b.nodeError
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n, err)
	}
}

// OnNodeRaw 注册原始帧事件，payload 为未解析的 JSON 字节
func (b *Bus) OnNodeRaw(fn func(*Node, []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeRaw = append(b.nodeRaw, fn)
}

func (b *Bus) EmitNodeRaw(n *Node, payload []byte) {
	b.mu.RLock()
	handlers := b.nodeRaw
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(n, payload)
	}
}

// ========== 玩家事件 ==========

func (b *Bus) OnPlayerCreate(fn func(*Player)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playerCreate = append(b.playerCreate, fn)
}

func (b *Bus) EmitPlayerCreate(p *Player) {
	b.mu.RLock()
	handlers := b.playerCreate
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p)
	}
}

func (b *Bus) OnPlayerDestroy(fn func(*Player)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playerDestroy = append(b.playerDestroy, fn)
}

func (b *Bus) EmitPlayerDestroy(p *Player) {
	b.mu.RLock()
	handlers := b.playerDestroy
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p)
	}
}

// OnPlayerMove 注册语音频道迁移事件，参数为旧频道和新频道
func (b *Bus) OnPlayerMove(fn func(*Player, string, string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playerMove = append(b.playerMove, fn)
}

func (b *Bus) EmitPlayerMove(p *Player, oldChannel, newChannel string) {
	b.mu.RLock()
	handlers := b.playerMove
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, oldChannel, newChannel)
	}
}

func (b *Bus) OnPlayerDisconnect(fn func(*Player, string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.playerDisconnect = append(b.playerDisconnect, fn)
}

func (b *Bus) EmitPlayerDisconnect(p *Player, oldChannel string) {
	b.mu.RLock()
	handlers := b.playerDisconnect
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, oldChannel)
	}
}

// ========== 播放事件 ==========

func (b *Bus) OnTrackStart(fn func(*Player, *model.Track)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackStart = append(b.trackStart, fn)
}

func (b *Bus) EmitTrackStart(p *Player, t *model.Track) {
	b.mu.RLock()
	handlers := b.trackStart
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, t)
	}
}

func (b *Bus) OnTrackEnd(fn func(*Player, *model.Track, TrackEndReason)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackEnd = append(b.trackEnd, fn)
}

func (b *Bus) EmitTrackEnd(p *Player, t *model.Track, reason TrackEndReason) {
	b.mu.RLock()
	handlers := b.trackEnd
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, t, reason)
	}
}

// OnTrackStuck 注册曲目卡顿事件，第三个参数是卡顿阈值（毫秒）
func (b *Bus) OnTrackStuck(fn func(*Player, *model.Track, int64)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackStuck = append(b.trackStuck, fn)
}

func (b *Bus) EmitTrackStuck(p *Player, t *model.Track, thresholdMs int64) {
	b.mu.RLock()
	handlers := b.trackStuck
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, t, thresholdMs)
	}
}

func (b *Bus) OnTrackError(fn func(*Player, *model.Track, TrackException)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trackError = append(b.trackError, fn)
}

func (b *Bus) EmitTrackError(p *Player, t *model.Track, exc TrackException) {
	b.mu.RLock()
	handlers := b.trackError
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, t, exc)
	}
}

// ========== 队列事件 ==========

func (b *Bus) OnQueueEnd(fn func(*Player)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queueEnd = append(b.queueEnd, fn)
}

func (b *Bus) EmitQueueEnd(p *Player) {
	b.mu.RLock()
	handlers := b.queueEnd
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p)
	}
}

// OnSocketClosed 注册节点到语音通道的连接关闭事件
func (b *Bus) OnSocketClosed(fn func(*Player, int, string, bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.socketClosed = append(b.socketClosed, fn)
}

func (b *Bus) EmitSocketClosed(p *Player, code int, reason string, byRemote bool) {
	b.mu.RLock()
	handlers := b.socketClosed
	b.mu.RUnlock()
	for _, fn := range handlers {
		fn(p, code, reason, byRemote)
	}
}
