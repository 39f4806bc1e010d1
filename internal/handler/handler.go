// Package handler 分派页面侧中继发来的消息到调解器。
package handler

import (
	"bytes"
	"context"
	"time"

	"github.com/tidwall/gjson"

	"prproxy/internal/codec"
	"prproxy/internal/logger"
	"prproxy/pkg/model"
	"prproxy/pkg/traffic"
)

// Mediator 调解器的边界操作
type Mediator interface {
	MediateOutbound(ctx context.Context, raw []byte, page model.PageID) []byte
	MediateInbound(ctx context.Context, raw []byte, page model.PageID)
	GetLogs(ctx context.Context) []model.ExtractionLog
	ClearAll(ctx context.Context)
	RecordManifest(page model.PageID, kind, url string)
}

// Handler 中继消息处理器
type Handler struct {
	mediator         Mediator
	processTimeoutMS int
	log              logger.Logger
}

// Config 配置选项
type Config struct {
	Mediator         Mediator
	ProcessTimeoutMS int
	Logger           logger.Logger
}

// New 创建消息处理器
func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Handler{
		mediator:         cfg.Mediator,
		processTimeoutMS: cfg.ProcessTimeoutMS,
		log:              cfg.Logger,
	}
}

// SetProcessTimeout 设置单条消息处理超时时间
func (h *Handler) SetProcessTimeout(timeoutMS int) {
	h.processTimeoutMS = timeoutMS
}

// Handle 处理一条消息并返回回复；回复体为 nil 表示只需确认
func (h *Handler) Handle(ctx context.Context, msg *traffic.Message) *traffic.Reply {
	page := model.PageID(msg.PageURL)
	l := h.log.With("type", msg.Type, "pageID", msg.PageURL, "requestId", msg.RequestID)
	reply := &traffic.Reply{RequestID: msg.RequestID}

	if h.processTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(h.processTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	switch msg.Type {
	case traffic.TypeRequest:
		reply.Body = h.handleRequest(ctx, msg, page, l)
	case traffic.TypeResponse:
		h.handleResponse(ctx, msg, page, l)
		reply.Body = msg.Body
	case traffic.TypeGetLogs:
		reply.Body = h.mediator.GetLogs(ctx)
	case traffic.TypeClear:
		h.mediator.ClearAll(ctx)
	case traffic.TypeManifest:
		h.handleManifest(msg, page, l)
	default:
		l.Warn("未知的中继消息类型")
	}
	return reply
}

// handleRequest 出站 challenge：Base64 解码后调解，再编码回去；无法解码时原样返回
func (h *Handler) handleRequest(ctx context.Context, msg *traffic.Message, page model.PageID, l logger.Logger) string {
	if msg.Body == "" {
		return msg.Body
	}
	raw, err := codec.DecodeBase64(msg.Body)
	if err != nil {
		l.Warn("请求体不是合法的 Base64，原样放行", "error", err)
		return msg.Body
	}
	start := time.Now()
	out := h.mediator.MediateOutbound(ctx, raw, page)
	l.Debug("出站消息处理完成", "duration", time.Since(start), "rewritten", !bytes.Equal(out, raw))
	return codec.EncodeBase64(out)
}

// handleResponse 入站许可证
func (h *Handler) handleResponse(ctx context.Context, msg *traffic.Message, page model.PageID, l logger.Logger) {
	raw, err := codec.DecodeBase64(msg.Body)
	if err != nil || len(raw) == 0 {
		l.Warn("许可证不是合法的 Base64，忽略", "error", err)
		return
	}
	h.mediator.MediateInbound(ctx, raw, page)
}

// handleManifest 清单通知，消息体为 {"type","url"}
func (h *Handler) handleManifest(msg *traffic.Message, page model.PageID, l logger.Logger) {
	if !gjson.Valid(msg.Body) {
		l.Warn("清单消息不是合法的 JSON")
		return
	}
	body := gjson.Parse(msg.Body)
	kind, url := body.Get("type").String(), body.Get("url").String()
	if url == "" {
		l.Warn("清单消息缺少 url")
		return
	}
	h.mediator.RecordManifest(page, kind, url)
}
