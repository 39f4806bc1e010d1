// Package capture 观察浏览器发出的请求：保存 GET 请求头快照并识别媒体清单。
package capture

import (
	"net/http"
	"strings"
	"sync"
)

// deniedPrefixes 浏览器内部的导航/内容协商/连接元数据头
var deniedPrefixes = []string{"sec-ch-ua", "sec-fetch", "accept-", "host"}

// Denied 判断请求头是否在过滤名单中
func Denied(name string) bool {
	n := strings.ToLower(name)
	if n == "connection" {
		return true
	}
	for _, p := range deniedPrefixes {
		if strings.HasPrefix(n, p) {
			return true
		}
	}
	return false
}

// FilterHeaders 去掉过滤名单中的头
func FilterHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if !Denied(k) {
			out[k] = v
		}
	}
	return out
}

// HeaderStore 按 URL 保存的请求头快照，首次写入后只读，直到显式清空
type HeaderStore struct {
	mu sync.RWMutex
	m  map[string]map[string]string
}

// NewHeaderStore 创建快照存储
func NewHeaderStore() *HeaderStore {
	return &HeaderStore{m: make(map[string]map[string]string)}
}

// Capture 记录 GET 请求的过滤后请求头，已存在的 URL 不覆盖
func (s *HeaderStore) Capture(url, method string, headers map[string]string) bool {
	if method != http.MethodGet || url == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[url]; ok {
		return false
	}
	s.m[url] = FilterHeaders(headers)
	return true
}

// Lookup 返回 URL 的请求头快照副本
func (s *HeaderStore) Lookup(url string) (map[string]string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.m[url]
	if !ok {
		return nil, false
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out, true
}

// Len 快照数量
func (s *HeaderStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// Clear 清空所有快照
func (s *HeaderStore) Clear() {
	s.mu.Lock()
	s.m = make(map[string]map[string]string)
	s.mu.Unlock()
}
