package model

// PageID 页面标识，宿主为每个浏览上下文分配的稳定句柄（顶层页面 URL）
type PageID string

// TargetID DevTools 目标ID
type TargetID string

// LogTypePlayReady ExtractionLog 的类型值
const LogTypePlayReady = "PLAYREADY"

// KeyResult 远端 CDM 返回的一个内容密钥
type KeyResult struct {
	KeyID string `json:"kid"`
	Key   string `json:"k"`
}

// ManifestRecord 页面上出现过的媒体清单
type ManifestRecord struct {
	Kind    string            `json:"type"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

// ExtractionLog 一次完整调解周期的产物
type ExtractionLog struct {
	Type      string           `json:"type"`
	Keys      []KeyResult      `json:"keys"`
	URL       string           `json:"url"`
	Timestamp int64            `json:"timestamp"`
	Manifests []ManifestRecord `json:"manifests"`
}

// Event 调解过程中对外发布的事件
type Event struct {
	Type      string   `json:"type"` // challenge / keys / bypass / degraded / error
	Page      PageID   `json:"page"`
	Target    TargetID `json:"target,omitempty"`
	Error     string   `json:"error,omitempty"`
	Timestamp int64    `json:"timestamp"`
}

// TargetInfo 可附加的浏览器目标
type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}
