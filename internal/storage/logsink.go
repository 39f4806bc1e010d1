package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"prproxy/pkg/model"
)

// LogRecord 持久化的一条提取结果
type LogRecord struct {
	ID        uint                   `gorm:"primaryKey"`
	Type      string                 `gorm:"size:32"`
	PageURL   string                 `gorm:"index"`
	Keys      []model.KeyResult      `gorm:"serializer:json"`
	Manifests []model.ManifestRecord `gorm:"serializer:json"`
	Timestamp int64
	CreatedAt time.Time
}

// LogSink 基于数据库的提取结果存储
type LogSink struct {
	db *gorm.DB
}

// NewLogSink 创建结果存储
func NewLogSink(db *gorm.DB) *LogSink {
	return &LogSink{db: db}
}

// Append 追加一条结果
func (s *LogSink) Append(ctx context.Context, log model.ExtractionLog) error {
	rec := LogRecord{
		Type:      log.Type,
		PageURL:   log.URL,
		Keys:      log.Keys,
		Manifests: log.Manifests,
		Timestamp: log.Timestamp,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// List 按写入顺序返回全部结果
func (s *LogSink) List(ctx context.Context) ([]model.ExtractionLog, error) {
	var recs []LogRecord
	if err := s.db.WithContext(ctx).Order("id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	out := make([]model.ExtractionLog, 0, len(recs))
	for _, r := range recs {
		keys, manifests := r.Keys, r.Manifests
		if keys == nil {
			keys = []model.KeyResult{}
		}
		if manifests == nil {
			manifests = []model.ManifestRecord{}
		}
		out = append(out, model.ExtractionLog{
			Type:      r.Type,
			Keys:      keys,
			URL:       r.PageURL,
			Timestamp: r.Timestamp,
			Manifests: manifests,
		})
	}
	return out, nil
}

// Clear 删除全部结果
func (s *LogSink) Clear(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&LogRecord{}).Error; err != nil {
		return fmt.Errorf("clear logs: %w", err)
	}
	return nil
}
