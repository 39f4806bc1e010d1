package session

import (
	"sync"
	"time"

	"prproxy/internal/logger"
	"prproxy/internal/remotecdm"
	"prproxy/pkg/model"
)

// Session 页面当前打开的远端会话
type Session struct {
	Page     model.PageID
	ID       string           // 远端服务发放的会话ID
	Remote   remotecdm.Config // 打开会话时使用的远端配置
	OpenedAt time.Time
}

// Manager 页面标识到远端会话的关联表，每个页面最多一个会话
type Manager struct {
	mu       sync.RWMutex
	sessions map[model.PageID]*Session
	log      logger.Logger
}

// NewManager 创建会话管理器
func NewManager(l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{
		sessions: make(map[model.PageID]*Session),
		log:      l,
	}
}

// Put 记录页面的会话，返回被覆盖的旧会话（后打开者生效）
func (m *Manager) Put(s *Session) (replaced *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	replaced = m.sessions[s.Page]
	m.sessions[s.Page] = s
	if replaced != nil {
		m.log.Warn("覆盖页面已有会话", "pageID", string(s.Page), "old", replaced.ID, "new", s.ID)
	} else {
		m.log.Info("记录页面会话", "pageID", string(s.Page), "sessionID", s.ID)
	}
	return replaced
}

// Get 获取页面会话
func (m *Manager) Get(page model.PageID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[page]
	return s, ok
}

// Delete 删除页面会话，仅当当前记录仍是 id 时才删除
func (m *Manager) Delete(page model.PageID, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[page]
	if !ok || cur.ID != id {
		return false
	}
	delete(m.sessions, page)
	m.log.Info("移除页面会话", "pageID", string(page), "sessionID", id)
	return true
}

// Clear 清空所有关联，不关闭远端会话
func (m *Manager) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = make(map[model.PageID]*Session)
	m.log.Info("清空页面会话", "count", n)
	return n
}

// List 返回所有活动会话
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}
