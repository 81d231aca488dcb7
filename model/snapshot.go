package model

// PlayerSnapshot 玩家可恢复状态，Redis 中按公会持久化
type PlayerSnapshot struct {
	GuildID        string                 `json:"guildId"`
	NodeID         string                 `json:"nodeId"`
	VoiceChannelID string                 `json:"voiceChannelId"`
	TextChannelID  string                 `json:"textChannelId"`
	Volume         int                    `json:"volume"`
	SelfMute       bool                   `json:"selfMute"`
	SelfDeaf       bool                   `json:"selfDeaf"`
	RepeatMode     string                 `json:"repeatMode"`
	CurrentEncoded string                 `json:"currentEncoded,omitempty"`
	QueueEncoded   []string               `json:"queueEncoded,omitempty"`
	Data           map[string]interface{} `json:"data,omitempty"`
	UpdatedAt      int64                  `json:"updatedAt"`
}

// Complete reports whether the snapshot carries the fields a player cannot
// be reconstructed without.
func (s *PlayerSnapshot) Complete() bool {
	return s.GuildID != "" && s.VoiceChannelID != "" && s.TextChannelID != ""
}
