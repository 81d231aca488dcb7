package repository

import (
	"fmt"
	"time"

	"Bt1QLink/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PlaybackHistoryRepository 播放历史仓储接口
type PlaybackHistoryRepository interface {
	RecordStart(guildID string, track *model.Track) (string, error)
	RecordEnd(recordID, reason string) error
	RecentByGuild(guildID string, limit int) ([]model.PlaybackHistory, error)
}

// GormHistoryRepository 基于 GORM 的播放历史仓储
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository 创建播放历史仓储
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	return &GormHistoryRepository{db: db}
}

// RecordStart inserts a history row for a track that just started and
// returns the record id used to stamp the end later.
func (r *GormHistoryRepository) RecordStart(guildID string, track *model.Track) (string, error) {
	if r.db == nil {
		return "", fmt.Errorf("history database not connected")
	}

	record := model.PlaybackHistory{
		ID:        uuid.NewString(),
		GuildID:   guildID,
		Title:     track.Info.Title,
		Author:    track.Info.Author,
		URI:       track.Info.URI,
		Source:    track.Info.SourceName,
		Requester: track.Requester,
		StartedAt: time.Now(),
	}
	if err := r.db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to insert playback history: %w", err)
	}
	return record.ID, nil
}

// RecordEnd stamps ended_at and the end reason on an existing row.
func (r *GormHistoryRepository) RecordEnd(recordID, reason string) error {
	if r.db == nil {
		return fmt.Errorf("history database not connected")
	}
	now := time.Now()
	return r.db.Model(&model.PlaybackHistory{}).
		Where("id = ?", recordID).
		Updates(map[string]interface{}{"ended_at": &now, "end_reason": reason}).Error
}

// RecentByGuild 查询公会最近的播放记录
func (r *GormHistoryRepository) RecentByGuild(guildID string, limit int) ([]model.PlaybackHistory, error) {
	if r.db == nil {
		return nil, fmt.Errorf("history database not connected")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var records []model.PlaybackHistory
	err := r.db.Where("guild_id = ?", guildID).
		Order("started_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query playback history: %w", err)
	}
	return records, nil
}
