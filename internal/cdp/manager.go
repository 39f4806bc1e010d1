// Package cdp 通过 Chrome DevTools 协议接入浏览器页面：
// 注入 EME 钩子、经运行时绑定接收中继消息、观察网络请求。
package cdp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/page"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
	"golang.org/x/sync/errgroup"

	"prproxy/internal/logger"
	"prproxy/pkg/model"
	"prproxy/pkg/traffic"
)

// defaultReplyTimeoutMS 未配置处理期限时页面侧的等待时间
const defaultReplyTimeoutMS = 30000

var (
	// ErrNotAttached 尚未附加到任何目标
	ErrNotAttached = errors.New("not attached")
	// ErrNoTarget 没有可附加的页面目标
	ErrNoTarget = errors.New("no page target")
)

// MessageHandler 中继消息处理
type MessageHandler interface {
	Handle(ctx context.Context, msg *traffic.Message) *traffic.Reply
}

// RequestObserver 网络请求观察
type RequestObserver interface {
	OnRequest(page model.PageID, req *traffic.Request) string
}

// Config 配置选项
type Config struct {
	DevtoolsURL string
	BindingName string
	Handler     MessageHandler
	Observer    RequestObserver // 可为 nil
	Events      chan model.Event
	Logger      logger.Logger
	// ProcessTimeoutMS 服务端处理一条消息的期限，页面侧等待回复的时间在此基础上留余量
	ProcessTimeoutMS int
}

// Manager 单个页面目标的 DevTools 会话
type Manager struct {
	devtoolsURL string
	bindingName string
	handler     MessageHandler
	observer    RequestObserver
	events      chan model.Event
	log         logger.Logger
	replyWait   int

	mu      sync.RWMutex
	target  model.TargetID
	conn    *rpcc.Conn
	client  *cdp.Client
	tracker pageTracker
}

// New 创建管理器
func New(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Manager{
		devtoolsURL: cfg.DevtoolsURL,
		bindingName: cfg.BindingName,
		handler:     cfg.Handler,
		observer:    cfg.Observer,
		events:      cfg.Events,
		log:         cfg.Logger,
		replyWait:   replyTimeoutMS(cfg.ProcessTimeoutMS),
	}
}

// ListTargets 列出可附加的页面目标
func (m *Manager) ListTargets(ctx context.Context) ([]model.TargetInfo, error) {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		out = append(out, model.TargetInfo{ID: model.TargetID(t.ID), Type: string(t.Type), URL: t.URL, Title: t.Title})
	}
	return out, nil
}

// Attach 附加到目标并安装钩子；target 为空时选择第一个页面
func (m *Manager) Attach(ctx context.Context, target model.TargetID) error {
	targets, err := devtool.New(m.devtoolsURL).List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	sel := selectTarget(targets, target)
	if sel == nil {
		return fmt.Errorf("%w: %q", ErrNoTarget, target)
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sel.WebSocketDebuggerURL, err)
	}
	client := cdp.NewClient(conn)
	if err := m.install(ctx, client); err != nil {
		conn.Close()
		return err
	}

	// 主帧ID用于过滤同文档导航，取不到时退回目标列表里的 URL
	frameID, pageURL := "", sel.URL
	if tree, err := client.Page.GetFrameTree(ctx); err != nil {
		m.log.Warn("获取帧树失败", "error", err)
	} else {
		frameID, pageURL = string(tree.FrameTree.Frame.ID), tree.FrameTree.Frame.URL
	}

	m.mu.Lock()
	old := m.conn
	m.target = model.TargetID(sel.ID)
	m.conn = conn
	m.client = client
	m.mu.Unlock()
	m.tracker.reset(frameID, pageURL)
	if old != nil {
		old.Close()
	}

	m.log.Info("已附加到页面", "target", sel.ID, "url", pageURL)
	m.sendEvent(model.Event{Type: "attached", Page: model.PageID(m.PageURL())})
	return nil
}

// install 注册绑定、注入钩子并开启网络事件
func (m *Manager) install(ctx context.Context, client *cdp.Client) error {
	script := HookScript(m.bindingName, m.replyWait)
	if err := client.Runtime.Enable(ctx); err != nil {
		return fmt.Errorf("runtime enable: %w", err)
	}
	if err := client.Runtime.AddBinding(ctx, runtime.NewAddBindingArgs(m.bindingName)); err != nil {
		return fmt.Errorf("add binding: %w", err)
	}
	if err := client.Page.Enable(ctx); err != nil {
		return fmt.Errorf("page enable: %w", err)
	}
	if _, err := client.Page.AddScriptToEvaluateOnNewDocument(ctx, page.NewAddScriptToEvaluateOnNewDocumentArgs(script)); err != nil {
		return fmt.Errorf("add hook script: %w", err)
	}
	if err := client.Network.Enable(ctx, network.NewEnableArgs()); err != nil {
		return fmt.Errorf("network enable: %w", err)
	}
	// 当前已加载的文档也注入一次，新会话仍需页面刷新才能拦截已创建的 MediaKeySession
	if _, err := client.Runtime.Evaluate(ctx, runtime.NewEvaluateArgs(script)); err != nil {
		m.log.Warn("注入当前文档失败", "error", err)
	}
	return nil
}

// Run 消费绑定调用、网络请求与导航事件，直到 ctx 结束或连接断开
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	client, target := m.client, m.target
	m.mu.RUnlock()
	if client == nil {
		return ErrNotAttached
	}

	g, gctx := errgroup.WithContext(ctx)

	bindings, err := client.Runtime.BindingCalled(gctx)
	if err != nil {
		return fmt.Errorf("subscribe binding: %w", err)
	}
	defer bindings.Close()
	requests, err := client.Network.RequestWillBeSent(gctx)
	if err != nil {
		return fmt.Errorf("subscribe network: %w", err)
	}
	defer requests.Close()
	navigations, err := client.Page.FrameNavigated(gctx)
	if err != nil {
		return fmt.Errorf("subscribe navigation: %w", err)
	}
	defer navigations.Close()
	inDocument, err := client.Page.NavigatedWithinDocument(gctx)
	if err != nil {
		return fmt.Errorf("subscribe in-document navigation: %w", err)
	}
	defer inDocument.Close()

	g.Go(func() error {
		for {
			ev, err := bindings.Recv()
			if err != nil {
				return err
			}
			if ev.Name != m.bindingName {
				continue
			}
			g.Go(func() error {
				m.handleBinding(gctx, client, target, ev)
				return nil
			})
		}
	})
	g.Go(func() error {
		for {
			ev, err := requests.Recv()
			if err != nil {
				return err
			}
			m.handleRequest(ev)
		}
	})
	g.Go(func() error {
		for {
			ev, err := navigations.Recv()
			if err != nil {
				return err
			}
			if m.tracker.frameNavigated(string(ev.Frame.ID), ev.Frame.ParentID == nil, ev.Frame.URL) {
				m.log.Debug("顶层页面导航", "url", m.PageURL())
			}
		}
	})
	g.Go(func() error {
		for {
			ev, err := inDocument.Recv()
			if err != nil {
				return err
			}
			if m.tracker.navigatedWithinDocument(string(ev.FrameID), ev.URL) {
				m.log.Debug("同文档导航", "url", m.PageURL())
			}
		}
	})

	m.log.Info("开始监听页面事件", "target", target)
	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Detach 断开连接
func (m *Manager) Detach() error {
	m.mu.Lock()
	conn := m.conn
	m.conn, m.client = nil, nil
	m.mu.Unlock()
	if conn == nil {
		return nil
	}
	m.log.Info("已断开页面连接")
	return conn.Close()
}

// PageURL 当前顶层页面 URL（不含片段），清单与会话共用的页面标识
func (m *Manager) PageURL() string {
	return m.tracker.current()
}

// replyTimeoutMS 页面侧等待回复的时间：处理期限再加 5 秒余量
func replyTimeoutMS(processTimeoutMS int) int {
	if processTimeoutMS <= 0 {
		return defaultReplyTimeoutMS
	}
	return processTimeoutMS + 5000
}

// selectTarget 按ID选择页面目标，id 为空时取第一个页面
func selectTarget(targets []*devtool.Target, id model.TargetID) *devtool.Target {
	for _, t := range targets {
		if t.Type != devtool.Page {
			continue
		}
		if id == "" || t.ID == string(id) {
			return t
		}
	}
	return nil
}

func stripFragment(u string) string {
	if i := strings.IndexByte(u, '#'); i >= 0 {
		return u[:i]
	}
	return u
}

// sendEvent 非阻塞发送事件
func (m *Manager) sendEvent(evt model.Event) {
	if m.events == nil {
		return
	}
	m.mu.RLock()
	evt.Target = m.target
	m.mu.RUnlock()
	select {
	case m.events <- evt:
	default:
	}
}
