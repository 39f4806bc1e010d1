package remotecdm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrNoRemoteConfigured 没有选中任何远端 CDM
	ErrNoRemoteConfigured = errors.New("no remote cdm configured")
	// ErrConfigParse 远端 CDM 配置无法解析
	ErrConfigParse = errors.New("remote cdm config parse error")
)

// Config 一个远端 CDM 目标的凭据与地址，不可变
type Config struct {
	SecurityLevel int    `json:"security_level"`
	Host          string `json:"host"`
	Secret        string `json:"secret"`
	DeviceName    string `json:"device_name"`
	Proxy         string `json:"proxy,omitempty"`
}

// ParseConfig 解析 JSON 配置，缺少必需字段即失败。
// 兼容导入的设备文件：device_name 可写作 name，secret 可写作 key。
func ParseConfig(b []byte) (Config, error) {
	if !gjson.ValidBytes(b) {
		return Config{}, fmt.Errorf("%w: invalid json", ErrConfigParse)
	}
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return Config{}, fmt.Errorf("%w: not an object", ErrConfigParse)
	}

	cfg := Config{
		SecurityLevel: int(root.Get("security_level").Int()),
		Host:          strings.TrimRight(root.Get("host").String(), "/"),
		Secret:        firstString(root, "secret", "key"),
		DeviceName:    firstString(root, "device_name", "name"),
		Proxy:         root.Get("proxy").String(),
	}
	if cfg.Host == "" {
		return Config{}, fmt.Errorf("%w: missing host", ErrConfigParse)
	}
	if cfg.DeviceName == "" {
		return Config{}, fmt.Errorf("%w: missing device_name", ErrConfigParse)
	}
	if cfg.Secret == "" {
		return Config{}, fmt.Errorf("%w: missing secret", ErrConfigParse)
	}
	return cfg, nil
}

func firstString(root gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := root.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

// Name 配置在注册表中的名称
func (c Config) Name() string {
	return fmt.Sprintf("[PlayReady] %s/%s", c.Host, c.DeviceName)
}

// WithProxy 返回替换了代理的副本
func (c Config) WithProxy(proxy string) Config {
	c.Proxy = proxy
	return c
}

// JSON 序列化为存储用的 JSON
func (c Config) JSON() ([]byte, error) {
	b := []byte(`{}`)
	var err error
	for _, f := range []struct {
		path string
		val  any
	}{
		{"security_level", c.SecurityLevel},
		{"host", c.Host},
		{"secret", c.Secret},
		{"device_name", c.DeviceName},
	} {
		if b, err = sjson.SetBytes(b, f.path, f.val); err != nil {
			return nil, err
		}
	}
	if c.Proxy != "" {
		if b, err = sjson.SetBytes(b, "proxy", c.Proxy); err != nil {
			return nil, err
		}
	}
	return b, nil
}
