package link

import (
	"context"
	"time"

	"Bt1QLink/logger"
	"Bt1QLink/model"
)

// 节点事件类型
const (
	eventTrackStart      = "TrackStartEvent"
	eventTrackEnd        = "TrackEndEvent"
	eventTrackStuck      = "TrackStuckEvent"
	eventTrackException  = "TrackExceptionEvent"
	eventWebSocketClosed = "WebSocketClosedEvent"
)

// handlePlayerUpdate 更新玩家缓存的播放位置
func (m *Manager) handlePlayerUpdate(guildID string, state *PlayerUpdateState) {
	if guildID == "" || state == nil {
		return
	}
	p := m.Player(guildID)
	if p == nil {
		return
	}
	p.mu.Lock()
	p.position = state.Position
	if state.Connected && p.state == PlayerConnecting {
		p.state = PlayerConnected
	}
	p.mu.Unlock()
}

// handlePlayerEvent routes one decoded node event. Events without a
// resolvable guild or player are dropped silently.
func (m *Manager) handlePlayerEvent(ev eventPayload) {
	if ev.GuildID == "" {
		return
	}
	p := m.Player(ev.GuildID)
	if p == nil {
		return
	}

	switch ev.Type {
	case eventTrackStart:
		m.handleTrackStart(p, ev.Track)
	case eventTrackEnd:
		m.handleTrackEnd(p, ev.Track, TrackEndReason(ev.Reason))
	case eventTrackStuck:
		m.bus.EmitTrackStuck(p, ev.Track, ev.ThresholdMs)
	case eventTrackException:
		exc := TrackException{}
		if ev.Exception != nil {
			exc = *ev.Exception
		}
		m.bus.EmitTrackError(p, ev.Track, exc)
	case eventWebSocketClosed:
		// 节点到语音服务器的链路关闭，区别于节点自身套接字
		m.bus.EmitSocketClosed(p, ev.Code, ev.Reason, ev.ByRemote)
	default:
		if p.Node() != nil {
			m.bus.EmitNodeError(p.Node(), &unknownEventError{eventType: ev.Type})
		}
	}
}

type unknownEventError struct {
	eventType string
}

func (e *unknownEventError) Error() string {
	return "unknown event type " + e.eventType
}

func (m *Manager) handleTrackStart(p *Player, track *model.Track) {
	p.mu.Lock()
	p.playing = true
	p.paused = false
	p.mu.Unlock()

	if m.history != nil && track != nil {
		if id, err := m.history.RecordStart(p.guildID, track); err != nil {
			logger.Warn("failed to record playback start",
				logger.String("guild", p.guildID),
				logger.ErrorField(err))
		} else {
			p.mu.Lock()
			p.historyID = id
			p.mu.Unlock()
		}
	}

	m.bus.EmitTrackStart(p, track)
}

// handleTrackEnd is the reason-driven decision tree. The queue is advanced
// at most once per event; emptiness is re-evaluated exactly once after that
// advance, so a single remaining entry is played rather than skipped.
func (m *Manager) handleTrackEnd(p *Player, ended *model.Track, reason TrackEndReason) {
	// 迁移/恢复进行中，延迟到达的结束事件直接丢弃
	switch p.State() {
	case PlayerMoving, PlayerResuming:
		return
	}

	m.stampHistoryEnd(p, reason)

	cur := p.queue.Current()

	switch reason {
	case ReasonReplaced:
		// 新曲目已被强制写入，只记 previous，不出队
		p.queue.MarkPrevious()
		m.bus.EmitTrackEnd(p, ended, reason)
		return

	case ReasonLoadFailed, ReasonCleanup:
		p.queue.Advance()
		if p.queue.Current() == nil {
			m.handleQueueEnd(p, ended)
			return
		}
		m.bus.EmitTrackEnd(p, ended, reason)
		if m.playNextOnEnd {
			m.startNext(p)
		}
		return

	default:
		// finished / stopped：先按循环模式回插，再推进一次
		switch p.RepeatMode() {
		case RepeatTrack:
			if cur != nil {
				p.queue.PushFront(*cur)
			}
		case RepeatQueue, RepeatDynamic:
			if cur != nil {
				p.queue.PushBack(*cur)
			}
		}

		p.queue.Advance()
		if p.queue.Current() == nil {
			m.handleQueueEnd(p, ended)
			return
		}
		m.bus.EmitTrackEnd(p, ended, reason)
		if m.playNextOnEnd {
			m.startNext(p)
		}
	}
}

func (m *Manager) startNext(p *Player) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.PlayCurrent(ctx); err != nil {
		logger.Warn("failed to start next track",
			logger.String("guild", p.guildID),
			logger.ErrorField(err))
	}
}

// handleQueueEnd clears current and either hands off to mix continuation
// or emits the queue-end event.
func (m *Manager) handleQueueEnd(p *Player, lastPlayed *model.Track) {
	p.queue.SetCurrent(nil)
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()

	if p.Autoplay() {
		go m.continueMix(p, lastPlayed)
		return
	}
	m.bus.EmitQueueEnd(p)
}

func (m *Manager) stampHistoryEnd(p *Player, reason TrackEndReason) {
	if m.history == nil {
		return
	}
	p.mu.Lock()
	id := p.historyID
	p.historyID = ""
	p.mu.Unlock()
	if id == "" {
		return
	}
	if err := m.history.RecordEnd(id, string(reason)); err != nil {
		logger.Warn("failed to record playback end",
			logger.String("guild", p.guildID),
			logger.ErrorField(err))
	}
}
