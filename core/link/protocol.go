package link

import (
	"encoding/json"

	"Bt1QLink/model"
)

// 节点入站帧操作码
const (
	opReady        = "ready"
	opStats        = "stats"
	opPlayerUpdate = "playerUpdate"
	opEvent        = "event"
)

// wsEnvelope 入站帧统一信封，按 op 分发
type wsEnvelope struct {
	Op      string `json:"op"`
	GuildID string `json:"guildId,omitempty"`

	// ready
	Resumed   bool   `json:"resumed,omitempty"`
	SessionID string `json:"sessionId,omitempty"`

	// playerUpdate
	State *PlayerUpdateState `json:"state,omitempty"`

	// event，原始保留二次解析
	Raw json.RawMessage `json:"-"`
}

// PlayerUpdateState playerUpdate 帧携带的播放状态
type PlayerUpdateState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
	Ping      int   `json:"ping"`
}

// eventPayload event 帧的完整载荷，字段按事件类型取用
type eventPayload struct {
	Type    string `json:"type"`
	GuildID string `json:"guildId"`

	Track       *model.Track    `json:"track,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	ThresholdMs int64           `json:"thresholdMs,omitempty"`
	Exception   *TrackException `json:"exception,omitempty"`

	// WebSocketClosedEvent
	Code     int  `json:"code,omitempty"`
	ByRemote bool `json:"byRemote,omitempty"`
}

// Stats 节点统计快照，stats 帧整体替换
type Stats struct {
	Players        int         `json:"players"`
	PlayingPlayers int         `json:"playingPlayers"`
	Uptime         int64       `json:"uptime"`
	Memory         MemoryStats `json:"memory"`
	CPU            CPUStats    `json:"cpu"`
	FrameStats     *FrameStats `json:"frameStats,omitempty"`
}

// MemoryStats 节点内存占用
type MemoryStats struct {
	Free       int64 `json:"free"`
	Used       int64 `json:"used"`
	Allocated  int64 `json:"allocated"`
	Reservable int64 `json:"reservable"`
}

// CPUStats 节点 CPU 负载
type CPUStats struct {
	Cores        int     `json:"cores"`
	SystemLoad   float64 `json:"systemLoad"`
	LavalinkLoad float64 `json:"lavalinkLoad"`
}

// FrameStats 音频帧统计
type FrameStats struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// Load reports the per-core system load used for node selection. Nodes that
// have not reported stats yet count as idle.
func (s Stats) Load() float64 {
	if s.CPU.Cores == 0 {
		return 0
	}
	return s.CPU.SystemLoad / float64(s.CPU.Cores)
}

// VoiceServer 语音会话凭据，由网关事件填充后推送给节点
type VoiceServer struct {
	Token     string `json:"token"`
	Endpoint  string `json:"endpoint"`
	SessionID string `json:"sessionId"`
}

// Complete reports whether the credentials are ready to hand to a node.
func (v VoiceServer) Complete() bool {
	return v.Token != "" && v.Endpoint != "" && v.SessionID != ""
}
