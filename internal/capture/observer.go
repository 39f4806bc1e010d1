package capture

import (
	"net/url"
	"strings"

	"prproxy/internal/logger"
	"prproxy/internal/rules"
	"prproxy/pkg/model"
	"prproxy/pkg/traffic"
)

// ManifestRecorder 接收识别出的清单
type ManifestRecorder interface {
	RecordManifest(page model.PageID, kind, url string)
}

// Observer 请求观察者
type Observer struct {
	headers  *HeaderStore
	engine   *rules.Engine
	recorder ManifestRecorder
	log      logger.Logger
}

// NewObserver 创建观察者，engine 为 nil 时只保存请求头
func NewObserver(headers *HeaderStore, engine *rules.Engine, recorder ManifestRecorder, l logger.Logger) *Observer {
	if l == nil {
		l = logger.NewNop()
	}
	return &Observer{headers: headers, engine: engine, recorder: recorder, log: l}
}

// OnRequest 处理一个即将发出的请求，返回识别出的清单类型（未识别为空）
func (o *Observer) OnRequest(page model.PageID, req *traffic.Request) string {
	if o.headers.Capture(req.URL, req.Method, req.Headers) {
		o.log.Debug("保存请求头快照", "url", req.URL)
	}
	if o.engine == nil || o.recorder == nil {
		return ""
	}
	res := o.engine.Eval(evalContext(req))
	if res == nil {
		return ""
	}
	o.log.Info("识别到媒体清单", "pageID", string(page), "kind", res.Kind, "url", req.URL, "rule", res.RuleID)
	o.recorder.RecordManifest(page, res.Kind, req.URL)
	return res.Kind
}

// evalContext 构造规则匹配上下文
func evalContext(req *traffic.Request) rules.Ctx {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[strings.ToLower(k)] = v
	}
	query := map[string]string{}
	if u, err := url.Parse(req.URL); err == nil {
		for key, vals := range u.Query() {
			if len(vals) > 0 {
				query[strings.ToLower(key)] = vals[0]
			}
		}
	}
	return rules.Ctx{URL: req.URL, Method: req.Method, Headers: headers, Query: query}
}
