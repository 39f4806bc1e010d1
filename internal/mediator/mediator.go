// Package mediator 是 PlayReady 许可证获取流程的调解状态机。
//
// 出站 challenge 与入站许可证是两条独立的异步消息，底层协议没有共享的请求ID，
// 只能通过页面标识关联到同一个远端会话。任何环节失败都退回原始数据（fail-open），
// 绝不破坏或丢弃无法调解的许可证请求。
package mediator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"prproxy/internal/codec"
	"prproxy/internal/ctxkeys"
	"prproxy/internal/envelope"
	"prproxy/internal/logger"
	"prproxy/internal/remotecdm"
	"prproxy/internal/session"
	"prproxy/pkg/model"
)

// closeTimeout 关闭远端会话的期限
const closeTimeout = 5 * time.Second

// Mediator 持有关联表、清单记录与结果存储，是边界操作唯一的修改入口
type Mediator struct {
	settings  Settings
	headers   HeaderSnapshots
	sink      LogSink
	sessions  *session.Manager
	newClient ClientFactory
	events    chan model.Event
	now       func() time.Time
	log       logger.Logger

	mu        sync.Mutex
	manifests map[model.PageID][]model.ManifestRecord
}

// Config 构造参数
type Config struct {
	Settings      Settings
	Headers       HeaderSnapshots // 可为 nil
	Sink          LogSink         // 为 nil 时使用内存存储
	Sessions      *session.Manager
	ClientFactory ClientFactory // 为 nil 时使用 remotecdm.New
	Events        chan model.Event
	Logger        logger.Logger
	Now           func() time.Time
}

// New 创建调解器，每个进程构造一次
func New(cfg Config) *Mediator {
	m := &Mediator{
		settings:  cfg.Settings,
		headers:   cfg.Headers,
		sink:      cfg.Sink,
		sessions:  cfg.Sessions,
		newClient: cfg.ClientFactory,
		events:    cfg.Events,
		now:       cfg.Now,
		log:       cfg.Logger,
		manifests: make(map[model.PageID][]model.ManifestRecord),
	}
	if m.log == nil {
		m.log = logger.NewNop()
	}
	if m.sink == nil {
		m.sink = NewMemorySink()
	}
	if m.sessions == nil {
		m.sessions = session.NewManager(m.log)
	}
	if m.newClient == nil {
		l := m.log
		m.newClient = func(c remotecdm.Config) RemoteClient {
			return remotecdm.New(c, remotecdm.WithLogger(l), remotecdm.WithTimeout(30*time.Second))
		}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// MediateOutbound 处理出站 challenge，总是返回可用的请求体（原始或改写后）
func (m *Mediator) MediateOutbound(ctx context.Context, raw []byte, page model.PageID) []byte {
	ctx, l := m.trace(ctx, page)

	out, err := m.generateChallenge(ctx, raw, page, l)
	if err != nil {
		m.degrade(l, "challenge", page, err)
		return raw
	}
	m.sendEvent(model.Event{Type: "challenge", Page: page})
	return out
}

// MediateInbound 处理入站许可证，只产生副作用（写入结果存储）
func (m *Mediator) MediateInbound(ctx context.Context, raw []byte, page model.PageID) {
	ctx, l := m.trace(ctx, page)

	if err := m.parseLicense(ctx, raw, page, l); err != nil {
		m.degrade(l, "license", page, err)
		return
	}
	m.sendEvent(model.Event{Type: "keys", Page: page})
}

// generateChallenge 出站各阶段，任一阶段出错由上层统一退回原始数据
func (m *Mediator) generateChallenge(ctx context.Context, raw []byte, page model.PageID, l logger.Logger) ([]byte, error) {
	if err := m.checkEnabled(ctx, page); err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, ErrEmptyBody
	}
	// 其他 DRM 方案的消息（如 JSON）直接放行
	if gjson.ValidBytes(raw) {
		return nil, ErrStructuredPayload
	}
	if page == "" {
		return nil, ErrNoPage
	}

	kid, err := envelope.ExtractKeyID(raw)
	if err != nil {
		return nil, err
	}
	pssh, err := codec.BuildPSSHFromKeyID(kid)
	if err != nil {
		return nil, err
	}
	l.Debug("构造 PSSH", "kid", kid, "pssh", pssh)

	remote, err := m.settings.SelectedRemote(ctx)
	if err != nil {
		return nil, err
	}
	client := m.newClient(remote)

	sid, err := client.Open(ctx)
	if err != nil {
		return nil, err
	}
	l = l.With("sessionID", sid)

	challenge, err := client.GetLicenseChallenge(ctx, sid, pssh)
	if err != nil {
		m.closeQuietly(ctx, client, sid, l)
		return nil, err
	}
	out, err := envelope.ReinjectChallenge(raw, challenge)
	if err != nil {
		m.closeQuietly(ctx, client, sid, l)
		return nil, err
	}

	// 同一页面的新 challenge 覆盖旧记录，旧的远端会话随即关闭
	replaced := m.sessions.Put(&session.Session{Page: page, ID: sid, Remote: remote, OpenedAt: m.now()})
	if replaced != nil && replaced.ID != sid {
		m.closeQuietly(ctx, m.newClient(replaced.Remote), replaced.ID, l)
	}
	l.Info("已生成远端 challenge", "remote", remote.Name())
	return out, nil
}

// parseLicense 入站各阶段
func (m *Mediator) parseLicense(ctx context.Context, raw []byte, page model.PageID, l logger.Logger) error {
	if err := m.checkEnabled(ctx, page); err != nil {
		return err
	}
	if page == "" {
		return ErrNoPage
	}
	sess, ok := m.sessions.Get(page)
	if !ok {
		return ErrNoSessionForPage
	}
	l = l.With("sessionID", sess.ID)
	client := m.newClient(sess.Remote)

	keys, err := client.GetKeys(ctx, sess.ID, codec.EncodeBase64(raw))
	if err != nil {
		m.closeQuietly(ctx, client, sess.ID, l)
		m.sessions.Delete(page, sess.ID)
		return err
	}
	// 零密钥不算错误，会话保留给后续许可证
	if len(keys) == 0 {
		return ErrEmptyKeyResult
	}

	entry := model.ExtractionLog{
		Type:      model.LogTypePlayReady,
		Keys:      keys,
		URL:       string(page),
		Timestamp: m.now().Unix(),
		Manifests: m.manifestsFor(page),
	}
	if err := m.sink.Append(ctx, entry); err != nil {
		l.Err(err, "写入提取结果失败")
	}
	l.Info("取得内容密钥", "count", len(keys))

	m.closeQuietly(ctx, client, sess.ID, l)
	m.sessions.Delete(page, sess.ID)
	return nil
}

// checkEnabled 功能关闭视为会话重置：清空该页面的清单记录
func (m *Mediator) checkEnabled(ctx context.Context, page model.PageID) error {
	enabled, err := m.settings.Enabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		m.clearManifests(page)
		return ErrDisabled
	}
	return nil
}

// closeQuietly 关闭远端会话，失败只记录。
// 调用方的 ctx 可能已因超时结束，关闭请求使用独立的期限。
func (m *Mediator) closeQuietly(ctx context.Context, client RemoteClient, sid string, l logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := client.Close(ctx, sid); err != nil {
		l.Warn("关闭远端会话失败，忽略", "sessionID", sid, "error", err)
	}
}

// degrade 统一的降级处理：记录原因
func (m *Mediator) degrade(l logger.Logger, leg string, page model.PageID, err error) {
	code := Code(err)
	if code == CodeBypass {
		l.Debug("放行，不做调解", "leg", leg, "reason", err.Error())
		m.sendEvent(model.Event{Type: "bypass", Page: page})
		return
	}
	if errors.Is(err, ErrEmptyKeyResult) || errors.Is(err, ErrNoSessionForPage) {
		l.Warn("调解未完成", "leg", leg, "code", code)
	} else {
		l.Err(err, "调解失败，退回原始数据", "leg", leg, "code", code)
	}
	m.sendEvent(model.Event{Type: "degraded", Page: page, Error: code})
}

// trace 为一次消息处理生成追踪ID
func (m *Mediator) trace(ctx context.Context, page model.PageID) (context.Context, logger.Logger) {
	id := uuid.NewString()
	ctx = context.WithValue(ctx, ctxkeys.TraceIDKey{}, id)
	ctx = context.WithValue(ctx, ctxkeys.PageIDKey{}, page)
	return ctx, m.log.With("traceId", id, "pageID", string(page))
}

// sendEvent 非阻塞发送事件，自动添加时间戳
func (m *Mediator) sendEvent(evt model.Event) {
	if m.events == nil {
		return
	}
	evt.Timestamp = m.now().UnixMilli()
	select {
	case m.events <- evt:
	default:
	}
}
