package link

import (
	"context"
	"time"

	"Bt1QLink/logger"
	"Bt1QLink/model"
)

// resumeGracePeriod RESUMING 状态保持窗口，吸收恢复期间的旧事件
const resumeGracePeriod = 3 * time.Second

// handleReady runs once per ready frame: persist the new session id, enable
// resume-on-disconnect on the node, then rebuild local players from the
// node's authoritative player list plus persisted snapshots. Re-running it
// for guilds that are already tracked is a no-op.
func (m *Manager) handleReady(n *Node, resumed bool, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.store.SetSession(ctx, n.ID(), sessionID); err != nil {
		logger.Warn("failed to persist node session",
			logger.String("node", n.ID()),
			logger.ErrorField(err))
	}

	if !m.cfg.ResumeEnabled {
		return
	}

	if err := n.Rest().UpdateSession(ctx, sessionID, true, m.cfg.ResumeTimeout); err != nil {
		m.handleRestError(n, err)
		logger.Warn("failed to enable session resuming",
			logger.String("node", n.ID()),
			logger.ErrorField(err))
		return
	}

	players, err := n.Rest().Players(ctx, sessionID)
	if err != nil {
		m.handleRestError(n, err)
		logger.Warn("failed to fetch node players",
			logger.String("node", n.ID()),
			logger.ErrorField(err))
		return
	}

	for _, rp := range players {
		m.resumePlayer(ctx, n, rp)
	}
}

// resumePlayer reconstructs one guild's player from the remote authoritative
// state and the persisted snapshot. Snapshots missing mandatory fields are
// stale and get deleted.
func (m *Manager) resumePlayer(ctx context.Context, n *Node, rp RestPlayer) {
	if rp.GuildID == "" {
		return
	}
	// 已在本地跟踪的公会跳过，保证幂等
	if m.Player(rp.GuildID) != nil {
		return
	}

	snapshot, err := m.store.GetSnapshot(ctx, rp.GuildID)
	if err != nil {
		logger.Warn("failed to load player snapshot",
			logger.String("guild", rp.GuildID),
			logger.ErrorField(err))
		return
	}
	if snapshot == nil {
		return
	}
	if !snapshot.Complete() {
		logger.Warn("discarding stale player snapshot",
			logger.String("guild", rp.GuildID))
		if err := m.store.DeleteSnapshot(ctx, rp.GuildID); err != nil {
			logger.Warn("failed to delete stale snapshot",
				logger.String("guild", rp.GuildID),
				logger.ErrorField(err))
		}
		return
	}

	p := m.trackPlayer(n, PlayerOptions{
		GuildID:        snapshot.GuildID,
		VoiceChannelID: snapshot.VoiceChannelID,
		TextChannelID:  snapshot.TextChannelID,
		Volume:         rp.Volume,
		SelfMute:       snapshot.SelfMute,
		SelfDeaf:       snapshot.SelfDeaf,
	})
	if p == nil {
		// 并发恢复同一公会时另一次已经赢了
		return
	}
	p.setState(PlayerResuming)

	if mode := RepeatMode(snapshot.RepeatMode); mode != "" {
		p.SetRepeatMode(mode)
	}

	// 持久化的 encoded 载荷还原成曲目并重建队列顺序
	var encoded []string
	if snapshot.CurrentEncoded != "" {
		encoded = append(encoded, snapshot.CurrentEncoded)
	}
	encoded = append(encoded, snapshot.QueueEncoded...)

	if len(encoded) > 0 {
		tracks, err := n.Rest().DecodeTracks(ctx, encoded)
		if err != nil {
			logger.Warn("failed to decode snapshot tracks",
				logger.String("guild", rp.GuildID),
				logger.ErrorField(err))
		} else {
			items := make([]model.QueueItem, 0, len(tracks))
			for i := range tracks {
				items = append(items, model.NewTrackItem(&tracks[i]))
			}
			if err := p.queue.Add(items, -1); err != nil {
				logger.Warn("failed to rebuild queue from snapshot",
					logger.String("guild", rp.GuildID),
					logger.ErrorField(err))
			}
		}
	}

	// 滤波器与音量以节点侧权威状态为准
	p.mu.Lock()
	p.filters = rp.Filters
	p.volume = rp.Volume
	p.paused = rp.Paused
	p.position = rp.State.Position
	p.playing = rp.Track != nil
	p.mu.Unlock()

	// 重新接入语音会话
	if err := p.Connect(snapshot.VoiceChannelID); err != nil {
		logger.Warn("failed to reconnect voice after resume",
			logger.String("guild", rp.GuildID),
			logger.ErrorField(err))
	}
	p.setState(PlayerResuming)

	// 合并推送一次，确保本地与节点状态收敛
	update := PlayerUpdate{
		Volume:   &rp.Volume,
		Paused:   &rp.Paused,
		Filters:  &rp.Filters,
		Position: &rp.State.Position,
	}
	// 节点已在播放时不重发曲目，避免从头重放
	if rp.Track == nil {
		if cur := p.queue.Current(); cur != nil && cur.Kind == model.ItemTrack && cur.Track != nil {
			update.EncodedTrack = &cur.Track.Encoded
		}
	}
	if _, err := n.Rest().UpdatePlayer(ctx, n.SessionID(), rp.GuildID, update, false); err != nil {
		m.handleRestError(n, err)
		logger.Warn("failed to converge resumed player",
			logger.String("guild", rp.GuildID),
			logger.ErrorField(err))
	}

	time.AfterFunc(resumeGracePeriod, func() {
		p.mu.Lock()
		if p.state == PlayerResuming {
			p.state = PlayerConnected
		}
		p.mu.Unlock()
	})

	logger.Info("player resumed",
		logger.String("guild", rp.GuildID),
		logger.String("node", n.ID()))
	m.bus.EmitPlayerCreate(p)
}
