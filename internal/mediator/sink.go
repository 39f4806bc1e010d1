package mediator

import (
	"context"
	"sync"

	"prproxy/pkg/model"
)

// MemorySink 进程内结果存储
type MemorySink struct {
	mu   sync.RWMutex
	logs []model.ExtractionLog
}

// NewMemorySink 创建内存存储
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append 追加一条结果
func (s *MemorySink) Append(_ context.Context, log model.ExtractionLog) error {
	s.mu.Lock()
	s.logs = append(s.logs, log)
	s.mu.Unlock()
	return nil
}

// List 返回全部结果副本
func (s *MemorySink) List(_ context.Context) ([]model.ExtractionLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ExtractionLog, len(s.logs))
	copy(out, s.logs)
	return out, nil
}

// Clear 清空
func (s *MemorySink) Clear(_ context.Context) error {
	s.mu.Lock()
	s.logs = nil
	s.mu.Unlock()
	return nil
}
