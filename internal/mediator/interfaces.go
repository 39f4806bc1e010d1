package mediator

import (
	"context"

	"prproxy/internal/remotecdm"
	"prproxy/pkg/model"
)

// Settings 外部持久化的开关与远端 CDM 选择
type Settings interface {
	// Enabled 调解功能是否开启
	Enabled(ctx context.Context) (bool, error)
	// SelectedRemote 当前选中的远端 CDM；未选中返回 remotecdm.ErrNoRemoteConfigured，
	// 配置损坏返回 remotecdm.ErrConfigParse
	SelectedRemote(ctx context.Context) (remotecdm.Config, error)
}

// HeaderSnapshots 外部采集的请求头快照，只读
type HeaderSnapshots interface {
	Lookup(url string) (map[string]string, bool)
}

// LogSink 提取结果的累积存储
type LogSink interface {
	Append(ctx context.Context, log model.ExtractionLog) error
	List(ctx context.Context) ([]model.ExtractionLog, error)
	Clear(ctx context.Context) error
}

// RemoteClient 远端 CDM 协议客户端
type RemoteClient interface {
	Open(ctx context.Context) (string, error)
	GetLicenseChallenge(ctx context.Context, sessionID, psshBase64 string) (string, error)
	GetKeys(ctx context.Context, sessionID, licenseBase64 string) ([]model.KeyResult, error)
	Close(ctx context.Context, sessionID string) error
}

// ClientFactory 按配置创建远端客户端
type ClientFactory func(cfg remotecdm.Config) RemoteClient
