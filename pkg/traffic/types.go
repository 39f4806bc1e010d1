package traffic

import (
	"strings"
)

// 中继消息类型
const (
	TypeRequest  = "REQUEST"
	TypeResponse = "RESPONSE"
	TypeGetLogs  = "GET_LOGS"
	TypeClear    = "CLEAR"
	TypeManifest = "MANIFEST"
)

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Set 设置指定 Header 的值
func (h Header) Set(key, value string) {
	h[key] = value
}

// Clone 复制一份头部
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Request 浏览器发出的一个网络请求（仅元数据）
type Request struct {
	ID           string // 请求ID
	URL          string // 完整URL
	Method       string // HTTP方法
	Headers      Header // 请求头
	ResourceType string // 资源类型 (如 Document, XHR)
	DocumentURL  string // 发起请求的文档 URL
}

// NewRequest 创建初始化请求对象
func NewRequest() *Request {
	return &Request{Headers: make(Header)}
}

// Message 页面侧中继发来的一条消息
type Message struct {
	Type      string // REQUEST / RESPONSE / GET_LOGS / CLEAR / MANIFEST
	Body      string // REQUEST/RESPONSE 为 Base64，MANIFEST 为 JSON
	RequestID string // 页面侧用于匹配回复的ID
	PageURL   string // 顶层页面 URL
}

// Reply 回复给页面侧的数据
type Reply struct {
	RequestID string
	Body      any
}

// NewMessage 创建消息
func NewMessage(typ, body string) *Message {
	return &Message{Type: typ, Body: body}
}
