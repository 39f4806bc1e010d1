package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prproxy/internal/codec"
	"prproxy/pkg/model"
	"prproxy/pkg/traffic"
)

type manifestCall struct {
	page      model.PageID
	kind, url string
}

type fakeMediator struct {
	outbound  [][]byte
	inbound   [][]byte
	pages     []model.PageID
	manifests []manifestCall
	cleared   int
	rewrite   []byte
	logs      []model.ExtractionLog
}

func (f *fakeMediator) MediateOutbound(_ context.Context, raw []byte, page model.PageID) []byte {
	f.outbound = append(f.outbound, raw)
	f.pages = append(f.pages, page)
	if f.rewrite != nil {
		return f.rewrite
	}
	return raw
}

func (f *fakeMediator) MediateInbound(_ context.Context, raw []byte, page model.PageID) {
	f.inbound = append(f.inbound, raw)
	f.pages = append(f.pages, page)
}

func (f *fakeMediator) GetLogs(context.Context) []model.ExtractionLog { return f.logs }

func (f *fakeMediator) ClearAll(context.Context) { f.cleared++ }

func (f *fakeMediator) RecordManifest(page model.PageID, kind, url string) {
	f.manifests = append(f.manifests, manifestCall{page, kind, url})
}

const page = "https://example.com/watch"

func msg(typ, body string) *traffic.Message {
	return &traffic.Message{Type: typ, Body: body, RequestID: "r-1", PageURL: page}
}

func TestRequestRewritten(t *testing.T) {
	m := &fakeMediator{rewrite: []byte("rewritten")}
	h := New(Config{Mediator: m, ProcessTimeoutMS: 1000})

	reply := h.Handle(context.Background(), msg(traffic.TypeRequest, codec.EncodeBase64([]byte("original"))))
	assert.Equal(t, "r-1", reply.RequestID)
	assert.Equal(t, codec.EncodeBase64([]byte("rewritten")), reply.Body)
	require.Len(t, m.outbound, 1)
	assert.Equal(t, []byte("original"), m.outbound[0])
	assert.Equal(t, []model.PageID{page}, m.pages)
}

func TestRequestBadBase64PassesThrough(t *testing.T) {
	m := &fakeMediator{}
	h := New(Config{Mediator: m})

	reply := h.Handle(context.Background(), msg(traffic.TypeRequest, "%%%"))
	assert.Equal(t, "%%%", reply.Body)
	assert.Empty(t, m.outbound)

	reply = h.Handle(context.Background(), msg(traffic.TypeRequest, ""))
	assert.Equal(t, "", reply.Body)
	assert.Empty(t, m.outbound)
}

func TestResponse(t *testing.T) {
	m := &fakeMediator{}
	h := New(Config{Mediator: m})

	body := codec.EncodeBase64([]byte("license"))
	reply := h.Handle(context.Background(), msg(traffic.TypeResponse, body))
	assert.Equal(t, body, reply.Body)
	assert.Equal(t, [][]byte{[]byte("license")}, m.inbound)

	h.Handle(context.Background(), msg(traffic.TypeResponse, "%%%"))
	assert.Len(t, m.inbound, 1)
}

func TestGetLogsAndClear(t *testing.T) {
	logs := []model.ExtractionLog{{Type: model.LogTypePlayReady, URL: page}}
	m := &fakeMediator{logs: logs}
	h := New(Config{Mediator: m})

	reply := h.Handle(context.Background(), msg(traffic.TypeGetLogs, ""))
	assert.Equal(t, logs, reply.Body)

	reply = h.Handle(context.Background(), msg(traffic.TypeClear, ""))
	assert.Nil(t, reply.Body)
	assert.Equal(t, 1, m.cleared)
}

func TestManifest(t *testing.T) {
	m := &fakeMediator{}
	h := New(Config{Mediator: m})

	h.Handle(context.Background(), msg(traffic.TypeManifest, `{"type":"DASH","url":"https://cdn/a.mpd"}`))
	h.Handle(context.Background(), msg(traffic.TypeManifest, `{"type":"DASH"}`))
	h.Handle(context.Background(), msg(traffic.TypeManifest, `not json`))

	assert.Equal(t, []manifestCall{{page, "DASH", "https://cdn/a.mpd"}}, m.manifests)
}

func TestUnknownType(t *testing.T) {
	m := &fakeMediator{}
	reply := New(Config{Mediator: m}).Handle(context.Background(), msg("OPEN_PICKER", ""))
	assert.Nil(t, reply.Body)
	assert.Equal(t, "r-1", reply.RequestID)
}
