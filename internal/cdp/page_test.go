package cdp

import (
	"context"
	"sync"
	"testing"

	"github.com/mafredri/cdp/protocol/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prproxy/pkg/model"
	"prproxy/pkg/traffic"
)

type recordingHandler struct {
	mu    sync.Mutex
	pages []string
	reply func(msg *traffic.Message) *traffic.Reply
}

func (h *recordingHandler) Handle(_ context.Context, msg *traffic.Message) *traffic.Reply {
	h.mu.Lock()
	h.pages = append(h.pages, msg.PageURL)
	h.mu.Unlock()
	if h.reply != nil {
		return h.reply(msg)
	}
	return &traffic.Reply{RequestID: msg.RequestID, Body: "TkVX"}
}

type recordingObserver struct {
	mu    sync.Mutex
	pages []model.PageID
}

func (o *recordingObserver) OnRequest(page model.PageID, _ *traffic.Request) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages = append(o.pages, page)
	return "DASH"
}

func TestPageTracker(t *testing.T) {
	var p pageTracker
	assert.False(t, p.navigatedWithinDocument("main", "https://example.com/x"), "main frame unknown")
	assert.Empty(t, p.current())

	p.reset("main", "https://example.com/watch#t=1")
	assert.Equal(t, "https://example.com/watch", p.current())

	assert.True(t, p.navigatedWithinDocument("main", "https://example.com/watch/42#x"))
	assert.Equal(t, "https://example.com/watch/42", p.current())
	assert.False(t, p.navigatedWithinDocument("main", "https://example.com/watch/42#y"))

	assert.False(t, p.navigatedWithinDocument("iframe", "https://player.example.net/embed"))
	assert.False(t, p.frameNavigated("iframe", false, "https://player.example.net/embed"))
	assert.Equal(t, "https://example.com/watch/42", p.current())

	assert.True(t, p.frameNavigated("main-2", true, "https://example.com/next"))
	assert.Equal(t, "https://example.com/next", p.current())
	assert.False(t, p.navigatedWithinDocument("main", "https://example.com/stale"))
	assert.True(t, p.navigatedWithinDocument("main-2", "https://example.com/next/1"))
	assert.Equal(t, "https://example.com/next/1", p.current())
}

// TestSinglePageIdentity 清单观察与中继消息在 SPA 路由变化和 iframe 播放器下使用同一页面标识
func TestSinglePageIdentity(t *testing.T) {
	h := &recordingHandler{}
	obs := &recordingObserver{}
	m := New(Config{Handler: h, Observer: obs, Events: make(chan model.Event, 8)})
	m.tracker.reset("main", "https://example.com/watch")

	m.tracker.navigatedWithinDocument("main", "https://example.com/watch/42#t=5")
	m.handleRequest(&network.RequestWillBeSentReply{
		RequestID:   "1",
		DocumentURL: "https://example.com/watch/42",
		Request:     network.Request{URL: "https://cdn.example.com/a.mpd", Method: "GET"},
	})

	script, err := m.dispatch(context.Background(), "P1",
		`{"type":"REQUEST","body":"T0xE","requestId":"7","pageUrl":"https://player.example.net/embed/9"}`)
	require.NoError(t, err)
	assert.Contains(t, script, `"requestId":"7"`)
	assert.Contains(t, script, `"body":"TkVX"`)

	assert.Equal(t, []model.PageID{"https://example.com/watch/42"}, obs.pages)
	assert.Equal(t, []string{"https://example.com/watch/42"}, h.pages)
}

func TestDispatchWithoutTrackedPage(t *testing.T) {
	h := &recordingHandler{}
	m := New(Config{Handler: h})

	_, err := m.dispatch(context.Background(), "P1", `{"type":"REQUEST","body":"T0xE","requestId":"1","pageUrl":"https://example.com/a"}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a"}, h.pages)

	_, err = m.dispatch(context.Background(), "P1", `not json`)
	assert.Error(t, err)
}

func TestDispatchFallsBackToOriginalBody(t *testing.T) {
	tests := []struct {
		name  string
		reply func(msg *traffic.Message) *traffic.Reply
	}{
		{"unserializable reply", func(msg *traffic.Message) *traffic.Reply {
			return &traffic.Reply{RequestID: msg.RequestID, Body: make(chan int)}
		}},
		{"nil reply", func(*traffic.Message) *traffic.Reply { return nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Config{Handler: &recordingHandler{reply: tt.reply}})
			script, err := m.dispatch(context.Background(), "P1", `{"type":"REQUEST","body":"T0xE","requestId":"3"}`)
			require.NoError(t, err)
			assert.Contains(t, script, `"requestId":"3"`)
			assert.Contains(t, script, `"body":"T0xE"`)
		})
	}
}
