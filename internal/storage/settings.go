package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prproxy/internal/logger"
	"prproxy/internal/remotecdm"
)

// 设置键
const (
	KeyEnabled        = "enabled"
	KeySelectedRemote = "selected_remote_cdm"
	KeyRemoteList     = "remote_cdms"
	KeyProxyEnabled   = "proxyEnabled"
	KeyProxyAddress   = "proxyAddress"
	KeyExeName        = "exe_name"

	// DefaultExeName 下载命令默认使用的可执行文件
	DefaultExeName = "DDownloader"
)

// Setting 一条键值设置
type Setting struct {
	Key       string `gorm:"column:name;primaryKey;size:512"`
	Value     string
	UpdatedAt time.Time
}

// Settings 键值设置存储，同时实现调解器需要的开关与远端选择
type Settings struct {
	db  *gorm.DB
	log logger.Logger
}

// NewSettings 创建设置存储
func NewSettings(db *gorm.DB, l logger.Logger) *Settings {
	if l == nil {
		l = logger.NewNop()
	}
	return &Settings{db: db, log: l}
}

// Get 读取设置，不存在时 ok 为 false
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var row Setting
	err := s.db.WithContext(ctx).Where("name = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %q: %w", key, err)
	}
	return row.Value, true, nil
}

// Set 写入设置
func (s *Settings) Set(ctx context.Context, key, value string) error {
	row := Setting{Key: key, Value: value, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// Delete 删除设置
func (s *Settings) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Where("name IN ?", keys).Delete(&Setting{}).Error; err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	return nil
}

func (s *Settings) getBool(ctx context.Context, key string) (bool, error) {
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("setting %q: %w", key, err)
	}
	return b, nil
}

// Enabled 调解开关，默认关闭
func (s *Settings) Enabled(ctx context.Context) (bool, error) {
	return s.getBool(ctx, KeyEnabled)
}

// SetEnabled 设置调解开关
func (s *Settings) SetEnabled(ctx context.Context, enabled bool) error {
	return s.Set(ctx, KeyEnabled, strconv.FormatBool(enabled))
}

// Proxy 全局代理设置
func (s *Settings) Proxy(ctx context.Context) (enabled bool, address string, err error) {
	if enabled, err = s.getBool(ctx, KeyProxyEnabled); err != nil {
		return false, "", err
	}
	address, _, err = s.Get(ctx, KeyProxyAddress)
	return enabled, address, err
}

// SetProxy 开启全局代理；address 为空表示关闭
func (s *Settings) SetProxy(ctx context.Context, address string) error {
	if address == "" {
		return s.Set(ctx, KeyProxyEnabled, "false")
	}
	if err := s.Set(ctx, KeyProxyAddress, address); err != nil {
		return err
	}
	return s.Set(ctx, KeyProxyEnabled, "true")
}

// ExeName 下载命令使用的可执行文件名
func (s *Settings) ExeName(ctx context.Context) (string, error) {
	v, ok, err := s.Get(ctx, KeyExeName)
	if err != nil {
		return "", err
	}
	if !ok {
		return DefaultExeName, nil
	}
	return v, nil
}

// SetExeName 设置可执行文件名
func (s *Settings) SetExeName(ctx context.Context, name string) error {
	return s.Set(ctx, KeyExeName, name)
}

// SelectedRemote 解析当前选中的远端 CDM，配置自身没有代理时套用开启的全局代理
func (s *Settings) SelectedRemote(ctx context.Context) (remotecdm.Config, error) {
	name, ok, err := s.Get(ctx, KeySelectedRemote)
	if err != nil {
		return remotecdm.Config{}, err
	}
	if !ok || name == "" {
		return remotecdm.Config{}, remotecdm.ErrNoRemoteConfigured
	}
	blob, ok, err := s.Get(ctx, name)
	if err != nil {
		return remotecdm.Config{}, err
	}
	if !ok {
		s.log.Warn("选中的远端 CDM 配置不存在", "name", name)
		return remotecdm.Config{}, remotecdm.ErrNoRemoteConfigured
	}
	cfg, err := remotecdm.ParseConfig([]byte(blob))
	if err != nil {
		return remotecdm.Config{}, err
	}

	if cfg.Proxy == "" {
		enabled, addr, err := s.Proxy(ctx)
		if err != nil {
			return remotecdm.Config{}, err
		}
		if enabled && addr != "" {
			cfg = cfg.WithProxy(addr)
		}
	}
	return cfg, nil
}

// remoteNames 读取注册表名称列表
func (s *Settings) remoteNames(ctx context.Context) ([]string, error) {
	v, _, err := s.Get(ctx, KeyRemoteList)
	if err != nil {
		return nil, err
	}
	names := []string{}
	gjson.Parse(v).ForEach(func(_, n gjson.Result) bool {
		names = append(names, n.String())
		return true
	})
	return names, nil
}
