package cdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prproxy/pkg/model"
)

func TestHookScript(t *testing.T) {
	s := HookScript("__relay", 35000)
	assert.Contains(t, s, `const binding = "__relay", replyEvent = "prproxy:reply", timeoutMS = 35000;`)
	assert.NotContains(t, s, "__BINDING__")
	assert.NotContains(t, s, "__REPLY__")
	assert.NotContains(t, s, "__TIMEOUT__")
	assert.Contains(t, HookScript("__relay", 0), "timeoutMS = 30000;")
	assert.Contains(t, s, `send("REQUEST"`)
	assert.Contains(t, s, `send("RESPONSE"`)
}

func TestStripFragment(t *testing.T) {
	assert.Equal(t, "https://example.com/a?b=1", stripFragment("https://example.com/a?b=1#t=10"))
	assert.Equal(t, "https://example.com/", stripFragment("https://example.com/"))
}

func newDevtoolsServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/json/list") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":"W1","type":"service_worker","title":"sw","url":"https://example.com/sw.js","webSocketDebuggerUrl":"ws://x/1"},
			{"id":"P1","type":"page","title":"Watch","url":"https://example.com/watch#t","webSocketDebuggerUrl":"ws://x/2"},
			{"id":"P2","type":"page","title":"Other","url":"https://example.com/other","webSocketDebuggerUrl":"ws://x/3"}
		]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestListTargets(t *testing.T) {
	srv := newDevtoolsServer(t)
	m := New(Config{DevtoolsURL: srv.URL})

	targets, err := m.ListTargets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.TargetInfo{
		{ID: "P1", Type: "page", Title: "Watch", URL: "https://example.com/watch#t"},
		{ID: "P2", Type: "page", Title: "Other", URL: "https://example.com/other"},
	}, targets)
}

func TestAttachUnknownTarget(t *testing.T) {
	srv := newDevtoolsServer(t)
	m := New(Config{DevtoolsURL: srv.URL})
	err := m.Attach(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestRunNotAttached(t *testing.T) {
	m := New(Config{})
	assert.ErrorIs(t, m.Run(context.Background()), ErrNotAttached)
	assert.NoError(t, m.Detach())
}
