package mediator

import (
	"context"

	"prproxy/internal/session"
	"prproxy/pkg/model"
)

// RecordManifest 页面清单按 URL 去重追加，附带该 URL 的请求头快照
func (m *Mediator) RecordManifest(page model.PageID, kind, url string) {
	headers := map[string]string{}
	if m.headers != nil {
		if h, ok := m.headers.Lookup(url); ok {
			headers = h
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.manifests[page] {
		if r.URL == url {
			return
		}
	}
	m.manifests[page] = append(m.manifests[page], model.ManifestRecord{Kind: kind, URL: url, Headers: headers})
	m.log.Debug("记录清单", "pageID", string(page), "kind", kind, "url", url)
}

// Manifests 返回页面的清单记录副本
func (m *Mediator) Manifests(page model.PageID) []model.ManifestRecord {
	return m.manifestsFor(page)
}

// GetLogs 返回所有累积的提取结果
func (m *Mediator) GetLogs(ctx context.Context) []model.ExtractionLog {
	logs, err := m.sink.List(ctx)
	if err != nil {
		m.log.Err(err, "读取提取结果失败")
		return []model.ExtractionLog{}
	}
	return logs
}

// ClearAll 清空结果、清单记录与所有会话关联；不关闭远端会话
func (m *Mediator) ClearAll(ctx context.Context) {
	if err := m.sink.Clear(ctx); err != nil {
		m.log.Err(err, "清空提取结果失败")
	}
	m.mu.Lock()
	m.manifests = make(map[model.PageID][]model.ManifestRecord)
	m.mu.Unlock()
	n := m.sessions.Clear()
	m.log.Info("已清空全部状态", "sessions", n)
}

// Sessions 当前打开的页面会话
func (m *Mediator) Sessions() []*session.Session {
	return m.sessions.List()
}

func (m *Mediator) manifestsFor(page model.PageID) []model.ManifestRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.ManifestRecord, len(m.manifests[page]))
	copy(out, m.manifests[page])
	return out
}

func (m *Mediator) clearManifests(page model.PageID) {
	m.mu.Lock()
	delete(m.manifests, page)
	m.mu.Unlock()
}
