package cdp

import (
	"context"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"

	adapter "prproxy/internal/adapter/cdp"
	"prproxy/pkg/model"
	"prproxy/pkg/traffic"
)

// handleBinding 处理一次绑定调用并把回复派发回发起调用的执行上下文。
// 回复送不回去时页面侧会在等待超时后放行原始数据。
func (m *Manager) handleBinding(ctx context.Context, client *cdp.Client, target model.TargetID, ev *runtime.BindingCalledReply) {
	script, err := m.dispatch(ctx, target, ev.Payload)
	if err != nil {
		m.log.Warn("忽略无法处理的中继消息", "error", err)
		return
	}
	res, err := client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(script).SetContextID(ev.ExecutionContextID))
	if err != nil {
		m.log.Warn("回复页面失败", "target", target, "error", err)
		return
	}
	if res.ExceptionDetails != nil {
		m.log.Warn("回复脚本执行异常", "target", target, "exception", res.ExceptionDetails.Text)
	}
}

// dispatch 解析中继消息并生成回复脚本。
// 页面标识统一取顶层帧 URL，与请求观察保持一致。
func (m *Manager) dispatch(ctx context.Context, target model.TargetID, payload string) (string, error) {
	msg, err := adapter.ToMessage(payload)
	if err != nil {
		return "", err
	}
	l := m.log.With("target", target, "type", msg.Type, "requestId", msg.RequestID)
	if page := m.PageURL(); page != "" {
		if msg.PageURL != "" && msg.PageURL != page {
			l.Debug("消息来自子帧或旧路由，按顶层页面处理", "reported", msg.PageURL, "page", page)
		}
		msg.PageURL = page
	}
	l.Debug("收到中继消息")

	reply := m.handler.Handle(ctx, msg)
	if reply == nil {
		reply = &traffic.Reply{RequestID: msg.RequestID, Body: msg.Body}
	}
	script, err := adapter.ToReplyScript(ReplyEvent, reply)
	if err != nil {
		l.Err(err, "回复序列化失败，退回原始数据")
		return adapter.ToReplyScript(ReplyEvent, &traffic.Reply{RequestID: msg.RequestID, Body: msg.Body})
	}
	return script, nil
}

// handleRequest 将请求交给观察者：保存请求头并识别清单
func (m *Manager) handleRequest(ev *network.RequestWillBeSentReply) {
	if m.observer == nil {
		return
	}
	req := adapter.ToNeutralRequest(ev)
	page := model.PageID(m.PageURL())
	if kind := m.observer.OnRequest(page, req); kind != "" {
		m.sendEvent(model.Event{Type: "manifest", Page: page})
	}
}
