package model

import "time"

// PlaybackHistory 播放历史记录
type PlaybackHistory struct {
	ID        string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	GuildID   string     `json:"guildId" gorm:"type:varchar(32);index"`
	Title     string     `json:"title" gorm:"type:varchar(255)"`
	Author    string     `json:"author" gorm:"type:varchar(255)"`
	URI       string     `json:"uri" gorm:"type:varchar(512)"`
	Source    string     `json:"source" gorm:"type:varchar(32)"`
	Requester string     `json:"requester" gorm:"type:varchar(32)"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
	EndReason string     `json:"endReason" gorm:"type:varchar(32)"`
}

// TableName 指定表名
func (PlaybackHistory) TableName() string {
	return "playback_history"
}
