package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，如 PRPROXY_SQLITE_DSN
const EnvPrefix = "PRPROXY"

// SqliteConfig 数据库配置
type SqliteConfig struct {
	Dsn    string `yaml:"dsn" mapstructure:"dsn"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string   `yaml:"level" mapstructure:"level"`
	Writer []string `yaml:"writer" mapstructure:"writer"`
	File   string   `yaml:"file" mapstructure:"file"`
}

// BrowserConfig DevTools 连接配置
type BrowserConfig struct {
	DevtoolsURL      string `yaml:"devtools_url" mapstructure:"devtools_url"`
	BindingName      string `yaml:"binding_name" mapstructure:"binding_name"`
	ProcessTimeoutMS int    `yaml:"process_timeout_ms" mapstructure:"process_timeout_ms"`
}

// RemoteConfig 远端 CDM 调用配置
type RemoteConfig struct {
	TimeoutMS int `yaml:"timeout_ms" mapstructure:"timeout_ms"`
}

// Config 配置文件结构体
type Config struct {
	Version string        `yaml:"version" mapstructure:"version"`
	Sqlite  SqliteConfig  `yaml:"sqlite" mapstructure:"sqlite"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Browser BrowserConfig `yaml:"browser" mapstructure:"browser"`
	Remote  RemoteConfig  `yaml:"remote" mapstructure:"remote"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Version: "1.0.0",
		Sqlite: SqliteConfig{
			Dsn:    "prproxy.sqlite3",
			Prefix: "prproxy_",
		},
		Log: LogConfig{
			Level:  "info",
			Writer: []string{"console", "file"},
			File:   "logs/prproxy.log",
		},
		Browser: BrowserConfig{
			DevtoolsURL:      "http://127.0.0.1:9222",
			BindingName:      "__prproxyRelay",
			ProcessTimeoutMS: 30000,
		},
		Remote: RemoteConfig{
			TimeoutMS: 30000,
		},
	}
}

// Load 读取配置：默认值 < 配置文件 < 环境变量；path 为空时只查找默认位置
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("prproxy")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.prproxy")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// setDefaults 逐项注册默认值，环境变量覆盖依赖已注册的键
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("version", d.Version)
	v.SetDefault("sqlite.dsn", d.Sqlite.Dsn)
	v.SetDefault("sqlite.prefix", d.Sqlite.Prefix)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.writer", d.Log.Writer)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("browser.devtools_url", d.Browser.DevtoolsURL)
	v.SetDefault("browser.binding_name", d.Browser.BindingName)
	v.SetDefault("browser.process_timeout_ms", d.Browser.ProcessTimeoutMS)
	v.SetDefault("remote.timeout_ms", d.Remote.TimeoutMS)
}
