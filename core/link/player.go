package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Bt1QLink/logger"
	"Bt1QLink/model"
)

// PlayerState 玩家生命周期状态
type PlayerState string

const (
	PlayerDisconnected  PlayerState = "DISCONNECTED"
	PlayerConnecting    PlayerState = "CONNECTING"
	PlayerConnected     PlayerState = "CONNECTED"
	PlayerDisconnecting PlayerState = "DISCONNECTING"
	PlayerDestroying    PlayerState = "DESTROYING"
	PlayerMoving        PlayerState = "MOVING"
	PlayerResuming      PlayerState = "RESUMING"
)

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatNone    RepeatMode = "none"
	RepeatTrack   RepeatMode = "track"
	RepeatQueue   RepeatMode = "queue"
	RepeatDynamic RepeatMode = "dynamic"
)

const (
	// moveGracePeriod 迁移后保持 MOVING 的窗口，吸收旧节点迟到的 TrackEnd
	moveGracePeriod = 3 * time.Second
	// dynamicShuffleInterval 动态循环模式下的定时打乱间隔
	dynamicShuffleInterval = 30 * time.Second

	defaultVolume = 100
	maxVolume     = 1000
)

// ErrNoVoiceCredentials 语音凭据尚未就绪
var ErrNoVoiceCredentials = errors.New("voice credentials not ready")

// PlayerOptions 创建玩家的参数
type PlayerOptions struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	NodeID         string // 为空时按负载选择
	Volume         int    // 0 表示默认 100
	SelfMute       bool
	SelfDeaf       bool
	Autoplay       bool
}

// Player is the per-guild playback aggregate: voice membership, queue,
// filters and a reassignable node reference. One player per guild.
type Player struct {
	mgr     *Manager
	guildID string
	queue   *Queue

	mu             sync.RWMutex
	node           *Node
	state          PlayerState
	voiceChannelID string
	textChannelID  string
	selfMute       bool
	selfDeaf       bool
	playing        bool
	paused         bool
	volume         int
	repeat         RepeatMode
	autoplay       bool
	filters        Filters
	position       int64
	voice          VoiceServer
	dynamicStop    chan struct{}
	historyID      string
}

func newPlayer(mgr *Manager, node *Node, opts PlayerOptions) *Player {
	volume := opts.Volume
	if volume <= 0 {
		volume = defaultVolume
	}
	return &Player{
		mgr:            mgr,
		guildID:        opts.GuildID,
		queue:          NewQueue(),
		node:           node,
		state:          PlayerDisconnected,
		voiceChannelID: opts.VoiceChannelID,
		textChannelID:  opts.TextChannelID,
		selfMute:       opts.SelfMute,
		selfDeaf:       opts.SelfDeaf,
		volume:         volume,
		repeat:         RepeatNone,
		autoplay:       opts.Autoplay,
	}
}

// ========== 只读访问 ==========

// GuildID 所属公会
func (p *Player) GuildID() string {
	return p.guildID
}

// Queue 玩家的队列引擎
func (p *Player) Queue() *Queue {
	return p.queue
}

// Node 当前绑定的节点
func (p *Player) Node() *Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.node
}

// State 生命周期状态
func (p *Player) State() PlayerState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// VoiceChannelID 语音频道
func (p *Player) VoiceChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.voiceChannelID
}

// TextChannelID 文字频道
func (p *Player) TextChannelID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.textChannelID
}

// Playing 是否正在播放
func (p *Player) Playing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.playing
}

// Paused 是否暂停
func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

// Volume 音量
func (p *Player) Volume() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.volume
}

// RepeatMode 循环模式
func (p *Player) RepeatMode() RepeatMode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.repeat
}

// Autoplay 队列播完后是否自动续播
func (p *Player) Autoplay() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoplay
}

// Filters 当前滤波器配置
func (p *Player) Filters() Filters {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.filters
}

// Position 最近上报的播放位置（毫秒）
func (p *Player) Position() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

func (p *Player) setState(s PlayerState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// ========== 语音连接 ==========

// Connect joins the voice channel by emitting a set-voice-state payload
// through the injected gateway transport.
func (p *Player) Connect(voiceChannelID string) error {
	p.mu.Lock()
	p.voiceChannelID = voiceChannelID
	p.state = PlayerConnecting
	mute, deaf := p.selfMute, p.selfDeaf
	p.mu.Unlock()

	if err := p.mgr.sendVoice(p.guildID, voiceChannelID, mute, deaf); err != nil {
		return fmt.Errorf("failed to send voice state for guild %s: %w", p.guildID, err)
	}
	p.saveSnapshot()
	return nil
}

// Disconnect 离开语音频道，保留玩家与队列
func (p *Player) Disconnect() error {
	p.mu.Lock()
	p.state = PlayerDisconnecting
	p.mu.Unlock()

	if err := p.mgr.sendVoice(p.guildID, "", false, false); err != nil {
		return fmt.Errorf("failed to send voice disconnect for guild %s: %w", p.guildID, err)
	}

	p.mu.Lock()
	p.state = PlayerDisconnected
	p.playing = false
	p.voiceChannelID = ""
	p.mu.Unlock()
	return nil
}

// ========== 播放控制 ==========

// Play enqueues the item and starts playback when idle.
func (p *Player) Play(ctx context.Context, item model.QueueItem) error {
	if err := p.queue.Add([]model.QueueItem{item}, -1); err != nil {
		return err
	}
	p.mu.RLock()
	playing := p.playing
	p.mu.RUnlock()
	if playing {
		p.saveSnapshot()
		return nil
	}
	return p.PlayCurrent(ctx)
}

// PlayCurrent pushes the queue's current track to the node. Unresolved
// entries are resolved in place first.
func (p *Player) PlayCurrent(ctx context.Context) error {
	cur := p.queue.Current()
	if cur == nil {
		return fmt.Errorf("nothing to play for guild %s", p.guildID)
	}

	if cur.Kind == model.ItemUnresolved {
		track, err := cur.Unresolved.Resolve(ctx)
		if err != nil {
			return err
		}
		resolved := model.NewTrackItem(track)
		p.queue.SetCurrent(&resolved)
		cur = &resolved
	}

	p.mu.RLock()
	node := p.node
	volume := p.volume
	p.mu.RUnlock()
	if node == nil {
		return fmt.Errorf("player for guild %s has no node", p.guildID)
	}

	encoded := cur.Track.Encoded
	paused := false
	update := PlayerUpdate{
		EncodedTrack: &encoded,
		Volume:       &volume,
		Paused:       &paused,
	}
	if _, err := node.Rest().UpdatePlayer(ctx, node.SessionID(), p.guildID, update, false); err != nil {
		p.mgr.handleRestError(node, err)
		return fmt.Errorf("failed to start track on node %s: %w", node.ID(), err)
	}

	p.mu.Lock()
	p.playing = true
	p.paused = false
	p.mu.Unlock()
	p.saveSnapshot()
	return nil
}

// Pause 暂停或恢复
func (p *Player) Pause(ctx context.Context, paused bool) error {
	node := p.Node()
	if node == nil {
		return fmt.Errorf("player for guild %s has no node", p.guildID)
	}
	if _, err := node.Rest().UpdatePlayer(ctx, node.SessionID(), p.guildID,
		PlayerUpdate{Paused: &paused}, false); err != nil {
		p.mgr.handleRestError(node, err)
		return err
	}
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
	return nil
}

// Stop 停止当前曲目，节点随后回报 stopped 结束事件
func (p *Player) Stop(ctx context.Context) error {
	node := p.Node()
	if node == nil {
		return fmt.Errorf("player for guild %s has no node", p.guildID)
	}
	if err := node.Rest().StopPlayer(ctx, node.SessionID(), p.guildID); err != nil {
		p.mgr.handleRestError(node, err)
		return err
	}
	return nil
}

// Seek 跳转到指定位置（毫秒）
func (p *Player) Seek(ctx context.Context, positionMs int64) error {
	node := p.Node()
	if node == nil {
		return fmt.Errorf("player for guild %s has no node", p.guildID)
	}
	if _, err := node.Rest().UpdatePlayer(ctx, node.SessionID(), p.guildID,
		PlayerUpdate{Position: &positionMs}, false); err != nil {
		p.mgr.handleRestError(node, err)
		return err
	}
	p.mu.Lock()
	p.position = positionMs
	p.mu.Unlock()
	return nil
}

// SetVolume 设置音量，范围 0-1000
func (p *Player) SetVolume(ctx context.Context, volume int) error {
	if volume < 0 || volume > maxVolume {
		return fmt.Errorf("volume %d out of range 0..%d", volume, maxVolume)
	}
	node := p.Node()
	if node == nil {
		return fmt.Errorf("player for guild %s has no node", p.guildID)
	}
	if _, err := node.Rest().UpdatePlayer(ctx, node.SessionID(), p.guildID,
		PlayerUpdate{Volume: &volume}, false); err != nil {
		p.mgr.handleRestError(node, err)
		return err
	}
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.saveSnapshot()
	return nil
}

// SetFilters 下发滤波器配置
func (p *Player) SetFilters(ctx context.Context, filters Filters) error {
	node := p.Node()
	if node == nil {
		return fmt.Errorf("player for guild %s has no node", p.guildID)
	}
	if _, err := node.Rest().UpdatePlayer(ctx, node.SessionID(), p.guildID,
		PlayerUpdate{Filters: &filters}, false); err != nil {
		p.mgr.handleRestError(node, err)
		return err
	}
	p.mu.Lock()
	p.filters = filters
	p.mu.Unlock()
	return nil
}

// SetAutoplay 开关自动续播
func (p *Player) SetAutoplay(enabled bool) {
	p.mu.Lock()
	p.autoplay = enabled
	p.mu.Unlock()
}

// SetRepeatMode switches the repeat mode. Entering dynamic mode starts the
// periodic shuffle; leaving it cancels the timer.
func (p *Player) SetRepeatMode(mode RepeatMode) {
	p.mu.Lock()
	if p.repeat == mode {
		p.mu.Unlock()
		return
	}
	p.repeat = mode

	if mode == RepeatDynamic {
		if p.dynamicStop == nil {
			stop := make(chan struct{})
			p.dynamicStop = stop
			go p.dynamicShuffleLoop(stop)
		}
	} else if p.dynamicStop != nil {
		close(p.dynamicStop)
		p.dynamicStop = nil
	}
	p.mu.Unlock()
	p.saveSnapshot()
}

func (p *Player) dynamicShuffleLoop(stop chan struct{}) {
	ticker := time.NewTicker(dynamicShuffleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.queue.Shuffle()
		case <-stop:
			return
		}
	}
}

// ========== 迁移 ==========

// MoveNode relocates the live player to another node. targetID may be
// empty, in which case the least-loaded connected node is used. The player
// stays MOVING for a grace window afterwards so late TrackEnd frames from
// the old node are ignored.
func (p *Player) MoveNode(ctx context.Context, targetID string) error {
	target, err := p.mgr.BestNode(targetID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	source := p.node
	if source != nil && source.ID() == target.ID() {
		p.mu.Unlock()
		return nil
	}
	p.state = PlayerMoving
	position := p.position
	volume := p.volume
	paused := p.paused
	filters := p.filters
	voice := p.voice
	p.mu.Unlock()

	// 源节点仍在线时取权威播放位置，避免可闻跳变
	if source != nil && source.State() == NodeConnected {
		if players, err := source.Rest().Players(ctx, source.SessionID()); err == nil {
			for _, rp := range players {
				if rp.GuildID == p.guildID {
					position = rp.State.Position
					break
				}
			}
		}
	}

	var encoded *string
	if cur := p.queue.Current(); cur != nil && cur.Kind == model.ItemTrack && cur.Track != nil {
		e := cur.Track.Encoded
		encoded = &e
	}

	update := PlayerUpdate{
		EncodedTrack: encoded,
		Position:     &position,
		Volume:       &volume,
		Paused:       &paused,
		Filters:      &filters,
	}
	if _, err := target.Rest().UpdatePlayer(ctx, target.SessionID(), p.guildID, update, false); err != nil {
		p.setState(PlayerConnected)
		p.mgr.handleRestError(target, err)
		return fmt.Errorf("failed to push state to node %s: %w", target.ID(), err)
	}

	// 语音凭据单独推送
	if voice.Complete() {
		if _, err := target.Rest().UpdatePlayer(ctx, target.SessionID(), p.guildID,
			PlayerUpdate{Voice: &voice}, false); err != nil {
			p.setState(PlayerConnected)
			p.mgr.handleRestError(target, err)
			return fmt.Errorf("failed to push voice to node %s: %w", target.ID(), err)
		}
	}

	p.mu.Lock()
	p.node = target
	p.mu.Unlock()
	p.saveSnapshot()

	logger.Info("player moved",
		logger.String("guild", p.guildID),
		logger.String("to", target.ID()))

	// 旧节点侧玩家异步销毁，宽限期后解除 MOVING
	go func(old *Node) {
		if old != nil && old.State() == NodeConnected {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := old.Rest().DestroyPlayer(dctx, old.SessionID(), p.guildID); err != nil {
				logger.Warn("failed to destroy player on old node",
					logger.String("guild", p.guildID),
					logger.String("node", old.ID()),
					logger.ErrorField(err))
			}
			cancel()
		}
		time.Sleep(moveGracePeriod)
		p.mu.Lock()
		if p.state == PlayerMoving {
			p.state = PlayerConnected
		}
		p.mu.Unlock()
	}(source)

	return nil
}

// ========== 销毁与快照 ==========

// Destroy removes the player locally and on its node.
func (p *Player) Destroy(ctx context.Context) error {
	p.mu.Lock()
	if p.state == PlayerDestroying {
		p.mu.Unlock()
		return nil
	}
	p.state = PlayerDestroying
	node := p.node
	if p.dynamicStop != nil {
		close(p.dynamicStop)
		p.dynamicStop = nil
	}
	p.mu.Unlock()

	if node != nil && node.State() == NodeConnected {
		if err := node.Rest().DestroyPlayer(ctx, node.SessionID(), p.guildID); err != nil &&
			!errors.Is(err, ErrNotFound) {
			logger.Warn("failed to destroy remote player",
				logger.String("guild", p.guildID),
				logger.ErrorField(err))
		}
	}

	p.finishDestroy()
	return nil
}

// destroyLocal 节点销毁路径：跳过 REST 调用，只清理本地状态
func (p *Player) destroyLocal() {
	p.mu.Lock()
	if p.state == PlayerDestroying {
		p.mu.Unlock()
		return
	}
	p.state = PlayerDestroying
	if p.dynamicStop != nil {
		close(p.dynamicStop)
		p.dynamicStop = nil
	}
	p.mu.Unlock()

	p.finishDestroy()
}

func (p *Player) finishDestroy() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := p.mgr.store.DeleteSnapshot(ctx, p.guildID); err != nil {
		logger.Warn("failed to delete player snapshot",
			logger.String("guild", p.guildID),
			logger.ErrorField(err))
	}
	cancel()

	p.queue.Clear()
	p.mgr.removePlayer(p.guildID)
	p.mgr.bus.EmitPlayerDestroy(p)
}

// saveSnapshot persists the resumable state to the store. Failures are
// logged and otherwise ignored.
func (p *Player) saveSnapshot() {
	p.mu.RLock()
	nodeID := ""
	if p.node != nil {
		nodeID = p.node.ID()
	}
	snapshot := &model.PlayerSnapshot{
		GuildID:        p.guildID,
		NodeID:         nodeID,
		VoiceChannelID: p.voiceChannelID,
		TextChannelID:  p.textChannelID,
		Volume:         p.volume,
		SelfMute:       p.selfMute,
		SelfDeaf:       p.selfDeaf,
		RepeatMode:     string(p.repeat),
		UpdatedAt:      time.Now().UnixMilli(),
	}
	p.mu.RUnlock()

	snapshot.CurrentEncoded, snapshot.QueueEncoded = p.queue.EncodedTracks()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.mgr.store.SetSnapshot(ctx, snapshot); err != nil {
		logger.Warn("failed to save player snapshot",
			logger.String("guild", p.guildID),
			logger.ErrorField(err))
	}
}
