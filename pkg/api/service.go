// Package api 组装存储、调解器与浏览器接入，对外提供统一的服务入口。
package api

import (
	"context"
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"prproxy/internal/capture"
	"prproxy/internal/cdp"
	"prproxy/internal/config"
	"prproxy/internal/export"
	"prproxy/internal/handler"
	"prproxy/internal/logger"
	"prproxy/internal/mediator"
	"prproxy/internal/remotecdm"
	"prproxy/internal/rules"
	"prproxy/internal/storage"
	"prproxy/pkg/model"
)

// Service 服务实现
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	db       *gorm.DB
	settings *storage.Settings
	headers  *capture.HeaderStore
	mediator *mediator.Mediator
	events   chan model.Event
}

// NewService 打开存储并创建调解器
func NewService(cfg *config.Config, l logger.Logger) (*Service, error) {
	if l == nil {
		l = logger.NewNop()
	}
	db, err := storage.Open(cfg.Sqlite, l)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		log:      l,
		db:       db,
		settings: storage.NewSettings(db, l),
		headers:  capture.NewHeaderStore(),
		events:   make(chan model.Event, 256),
	}

	timeout := time.Duration(cfg.Remote.TimeoutMS) * time.Millisecond
	s.mediator = mediator.New(mediator.Config{
		Settings: s.settings,
		Headers:  s.headers,
		Sink:     storage.NewLogSink(db),
		ClientFactory: func(c remotecdm.Config) mediator.RemoteClient {
			return remotecdm.New(c, remotecdm.WithLogger(l), remotecdm.WithTimeout(timeout))
		},
		Events: s.events,
		Logger: l.With("module", "mediator"),
	})
	return s, nil
}

// Settings 设置与远端 CDM 注册表
func (s *Service) Settings() *storage.Settings { return s.settings }

// Mediator 调解器
func (s *Service) Mediator() *mediator.Mediator { return s.mediator }

// Events 事件流
func (s *Service) Events() <-chan model.Event { return s.events }

// ListTargets 列出浏览器中的页面
func (s *Service) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	return s.newManager().ListTargets(ctx)
}

// Run 附加到页面并调解，直到 ctx 结束
func (s *Service) Run(ctx context.Context, target model.TargetID) error {
	m := s.newManager()
	if err := m.Attach(ctx, target); err != nil {
		return err
	}
	defer m.Detach()
	return m.Run(ctx)
}

func (s *Service) newManager() *cdp.Manager {
	l := s.log.With("module", "cdp")
	h := handler.New(handler.Config{
		Mediator:         s.mediator,
		ProcessTimeoutMS: s.cfg.Browser.ProcessTimeoutMS,
		Logger:           s.log.With("module", "relay"),
	})
	obs := capture.NewObserver(s.headers, rules.New(rules.DefaultManifestRules()), s.mediator, l)
	return cdp.New(cdp.Config{
		DevtoolsURL: s.cfg.Browser.DevtoolsURL,
		BindingName: s.cfg.Browser.BindingName,
		Handler:     h,
		Observer:    obs,
		Events:      s.events,
		Logger:      l,

		ProcessTimeoutMS: s.cfg.Browser.ProcessTimeoutMS,
	})
}

// Logs 全部提取结果
func (s *Service) Logs(ctx context.Context) []model.ExtractionLog {
	return s.mediator.GetLogs(ctx)
}

// ClearLogs 清空结果与会话状态
func (s *Service) ClearLogs(ctx context.Context) {
	s.mediator.ClearAll(ctx)
}

// ExportLogs 以 JSON 写出全部结果
func (s *Service) ExportLogs(ctx context.Context, w io.Writer) error {
	return export.WriteJSON(w, s.Logs(ctx))
}

// DownloadCommands 第 index 条结果每个清单对应的下载命令
func (s *Service) DownloadCommands(ctx context.Context, index int) ([]string, error) {
	logs := s.Logs(ctx)
	if index < 0 || index >= len(logs) {
		return nil, fmt.Errorf("log index %d out of range (%d logs)", index, len(logs))
	}
	exe, err := s.settings.ExeName(ctx)
	if err != nil {
		return nil, err
	}
	return export.Commands(exe, logs[index]), nil
}

// Close 关闭数据库
func (s *Service) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
