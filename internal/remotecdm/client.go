// Package remotecdm 是远端 PlayReady CDM 服务的无状态协议客户端。
package remotecdm

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"prproxy/internal/logger"
	"prproxy/pkg/model"
)

const (
	// HeaderSecret 鉴权头
	HeaderSecret = "X-API-KEY"
	// HeaderForwardedFor 经代理转发时携带原代理地址
	HeaderForwardedFor = "X-Forwarded-For"

	maxBodySize = 4 << 20
)

// Client 持有一个不可变配置的远端 CDM 客户端
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// Option 客户端选项
type Option func(*Client)

// WithHTTPClient 指定底层 HTTP 客户端，超时由其负责
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger 指定日志器
func WithLogger(l logger.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithTimeout 使用带超时的默认 HTTP 客户端
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http = &http.Client{Timeout: d} }
}

// New 创建客户端
func New(cfg Config, opts ...Option) *Client {
	c := &Client{cfg: cfg, http: http.DefaultClient, log: logger.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("remote", cfg.Name())
	return c
}

// Config 返回客户端配置
func (c *Client) Config() Config { return c.cfg }

// Open 打开远端会话，返回会话ID
func (c *Client) Open(ctx context.Context) (string, error) {
	body, err := c.do(ctx, "open", http.MethodGet, c.endpoint("open"), nil)
	if err != nil {
		return "", err
	}
	id := field(body, "session_id")
	if id == "" {
		return "", &RemoteError{Op: "open", Status: http.StatusOK, Body: string(body), Reason: "missing session_id"}
	}
	c.log.Debug("远端会话已打开", "sessionID", id)
	return id, nil
}

// GetLicenseChallenge 为 PSSH 申请许可证 challenge（Base64）
func (c *Client) GetLicenseChallenge(ctx context.Context, sessionID, psshBase64 string) (string, error) {
	payload, err := jsonBody("session_id", sessionID, "pssh", psshBase64)
	if err != nil {
		return "", err
	}
	body, err := c.do(ctx, "get_challenge", http.MethodPost, c.endpoint("get_challenge"), payload)
	if err != nil {
		return "", err
	}
	challenge := field(body, "challenge_b64")
	if challenge == "" {
		return "", &RemoteError{Op: "get_challenge", Status: http.StatusOK, Body: string(body), Reason: "missing challenge_b64"}
	}
	return challenge, nil
}

// GetKeys 提交许可证并取回密钥，空切片表示未授予任何密钥
func (c *Client) GetKeys(ctx context.Context, sessionID, licenseBase64 string) ([]model.KeyResult, error) {
	payload, err := jsonBody("session_id", sessionID, "license_b64", licenseBase64)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, "get_keys", http.MethodPost, c.endpoint("get_keys"), payload)
	if err != nil {
		return nil, err
	}
	keys := []model.KeyResult{}
	lookup(body, "keys").ForEach(func(_, v gjson.Result) bool {
		keys = append(keys, model.KeyResult{
			KeyID: v.Get("key_id").String(),
			Key:   v.Get("key").String(),
		})
		return true
	})
	return keys, nil
}

// Close 关闭远端会话；失败只记录日志，由调用方决定是否忽略
func (c *Client) Close(ctx context.Context, sessionID string) error {
	_, err := c.do(ctx, "close", http.MethodGet, c.endpoint("close", sessionID), nil)
	if err != nil {
		c.log.Warn("关闭远端会话失败", "sessionID", sessionID, "error", err)
		return err
	}
	c.log.Debug("远端会话已关闭", "sessionID", sessionID)
	return nil
}

// endpoint 拼接 {host}/api/playready/{device}/{parts...}
func (c *Client) endpoint(parts ...string) string {
	u := c.cfg.Host + "/api/playready/" + url.PathEscape(c.cfg.DeviceName)
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// do 执行一次请求/响应，配置了代理时改写 URL 并附加转发头
func (c *Client) do(ctx context.Context, op, method, target string, payload []byte) ([]byte, error) {
	if c.cfg.Proxy != "" {
		target = c.cfg.Proxy + target
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, &TransportError{Op: op, URL: target, Err: err}
	}
	req.Header.Set(HeaderSecret, c.cfg.Secret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Proxy != "" {
		req.Header.Set(HeaderForwardedFor, c.cfg.Proxy)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("远端请求失败", "op", op, "url", target, "error", err)
		return nil, &TransportError{Op: op, URL: target, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &TransportError{Op: op, URL: target, Err: err}
	}
	c.log.Debug("远端请求完成", "op", op, "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteError{Op: op, Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// lookup 读取 responseData.<name>，兼容 data.<name>
func lookup(body []byte, name string) gjson.Result {
	if v := gjson.GetBytes(body, "responseData."+name); v.Exists() {
		return v
	}
	return gjson.GetBytes(body, "data."+name)
}

func field(body []byte, name string) string {
	return lookup(body, name).String()
}

// jsonBody 以 key/value 交替构造 JSON 请求体
func jsonBody(kv ...string) ([]byte, error) {
	b := []byte(`{}`)
	var err error
	for i := 0; i+1 < len(kv); i += 2 {
		if b, err = sjson.SetBytes(b, kv[i], kv[i+1]); err != nil {
			return nil, err
		}
	}
	return b, nil
}
