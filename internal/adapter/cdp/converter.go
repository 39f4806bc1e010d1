package cdp

import (
	"errors"
	"fmt"
	"strconv"

	jsoniter "github.com/json-iterator/go"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/tidwall/gjson"

	"prproxy/pkg/traffic"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidPayload 绑定调用的载荷不是合法的中继消息
var ErrInvalidPayload = errors.New("invalid relay payload")

// ToNeutralRequest 将 CDP 事件转换为中立 Request 模型
func ToNeutralRequest(ev *network.RequestWillBeSentReply) *traffic.Request {
	req := traffic.NewRequest()
	req.ID = string(ev.RequestID)
	req.URL = ev.Request.URL
	req.Method = ev.Request.Method
	req.DocumentURL = ev.DocumentURL
	if ev.Type != "" {
		req.ResourceType = string(ev.Type)
	}

	// 处理 Header，值可能不是字符串
	if len(ev.Request.Headers) > 0 {
		gjson.ParseBytes(ev.Request.Headers).ForEach(func(k, v gjson.Result) bool {
			req.Headers.Set(k.String(), v.String())
			return true
		})
	}
	return req
}

// ToMessage 解析页面侧通过绑定发来的 JSON 载荷
func ToMessage(payload string) (*traffic.Message, error) {
	if !gjson.Valid(payload) {
		return nil, fmt.Errorf("%w: not json", ErrInvalidPayload)
	}
	p := gjson.Parse(payload)
	msg := &traffic.Message{
		Type:      p.Get("type").String(),
		Body:      p.Get("body").String(),
		RequestID: p.Get("requestId").String(),
		PageURL:   p.Get("pageUrl").String(),
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrInvalidPayload)
	}
	return msg, nil
}

// ToReplyScript 生成在页面中派发回复事件的表达式
func ToReplyScript(eventName string, r *traffic.Reply) (string, error) {
	detail, err := json.Marshal(struct {
		RequestID string `json:"requestId"`
		Body      any    `json:"body"`
	}{r.RequestID, r.Body})
	if err != nil {
		return "", fmt.Errorf("marshal reply: %w", err)
	}
	return fmt.Sprintf("document.dispatchEvent(new CustomEvent(%s, {detail: %s}))", strconv.Quote(eventName), detail), nil
}
