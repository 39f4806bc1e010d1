package cdp

import "sync"

// pageTracker 跟踪顶层帧的 URL。
// 清单记录与中继消息都以它作为页面标识，iframe 播放器和同文档路由变化不会拆开两侧。
type pageTracker struct {
	mu        sync.RWMutex
	mainFrame string
	url       string
}

// reset 附加时以主帧重新开始
func (p *pageTracker) reset(frameID, url string) {
	p.mu.Lock()
	p.mainFrame = frameID
	p.url = stripFragment(url)
	p.mu.Unlock()
}

// frameNavigated 处理 Page.frameNavigated；只有顶层帧生效，返回是否变化
func (p *pageTracker) frameNavigated(frameID string, top bool, url string) bool {
	if !top {
		return false
	}
	url = stripFragment(url)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mainFrame = frameID
	changed := p.url != url
	p.url = url
	return changed
}

// navigatedWithinDocument 处理 pushState 与锚点跳转；主帧未知时不更新
func (p *pageTracker) navigatedWithinDocument(frameID, url string) bool {
	url = stripFragment(url)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mainFrame == "" || frameID != p.mainFrame {
		return false
	}
	changed := p.url != url
	p.url = url
	return changed
}

func (p *pageTracker) current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.url
}
