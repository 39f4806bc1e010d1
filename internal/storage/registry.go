package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/tidwall/sjson"
	"gorm.io/gorm"

	"prproxy/internal/remotecdm"
)

// ErrRemoteNotFound 注册表中没有该名称
var ErrRemoteNotFound = errors.New("remote cdm not found")

// ImportRemote 导入设备配置：保存配置、登记名称并设为当前选中
func (s *Settings) ImportRemote(ctx context.Context, blob []byte) (remotecdm.Config, error) {
	cfg, err := remotecdm.ParseConfig(blob)
	if err != nil {
		return remotecdm.Config{}, err
	}
	normalized, err := cfg.JSON()
	if err != nil {
		return remotecdm.Config{}, err
	}

	name := cfg.Name()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := NewSettings(tx, s.log)
		if err := st.Set(ctx, name, string(normalized)); err != nil {
			return err
		}
		names, err := st.remoteNames(ctx)
		if err != nil {
			return err
		}
		if !slices.Contains(names, name) {
			if err := st.setRemoteNames(ctx, append(names, name)); err != nil {
				return err
			}
		}
		return st.Set(ctx, KeySelectedRemote, name)
	})
	if err != nil {
		return remotecdm.Config{}, err
	}
	s.log.Info("已导入远端 CDM", "name", name)
	return cfg, nil
}

// ListRemotes 返回注册表中的名称
func (s *Settings) ListRemotes(ctx context.Context) ([]string, error) {
	return s.remoteNames(ctx)
}

// SelectedRemoteName 当前选中的名称，未选中为空
func (s *Settings) SelectedRemoteName(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeySelectedRemote)
	return v, err
}

// SelectRemote 选中注册表中的一项
func (s *Settings) SelectRemote(ctx context.Context, name string) error {
	names, err := s.remoteNames(ctx)
	if err != nil {
		return err
	}
	if !slices.Contains(names, name) {
		return fmt.Errorf("%w: %s", ErrRemoteNotFound, name)
	}
	return s.Set(ctx, KeySelectedRemote, name)
}

// RemoveSelectedRemote 删除当前选中项，之后选中剩余的第一项或清除选择
func (s *Settings) RemoveSelectedRemote(ctx context.Context) (string, error) {
	name, err := s.SelectedRemoteName(ctx)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", remotecdm.ErrNoRemoteConfigured
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		st := NewSettings(tx, s.log)
		names, err := st.remoteNames(ctx)
		if err != nil {
			return err
		}
		names = slices.DeleteFunc(names, func(n string) bool { return n == name })
		if err := st.setRemoteNames(ctx, names); err != nil {
			return err
		}
		if err := st.Delete(ctx, name); err != nil {
			return err
		}
		if len(names) > 0 {
			return st.Set(ctx, KeySelectedRemote, names[0])
		}
		return st.Delete(ctx, KeySelectedRemote)
	})
	if err != nil {
		return "", err
	}
	s.log.Info("已删除远端 CDM", "name", name)
	return name, nil
}

// ExportRemote 导出配置 JSON，name 为空时导出当前选中项
func (s *Settings) ExportRemote(ctx context.Context, name string) ([]byte, error) {
	if name == "" {
		var err error
		if name, err = s.SelectedRemoteName(ctx); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, remotecdm.ErrNoRemoteConfigured
		}
	}
	blob, ok, err := s.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRemoteNotFound, name)
	}
	return []byte(blob), nil
}

func (s *Settings) setRemoteNames(ctx context.Context, names []string) error {
	v := `[]`
	var err error
	for _, n := range names {
		if v, err = sjson.Set(v, "-1", n); err != nil {
			return err
		}
	}
	return s.Set(ctx, KeyRemoteList, v)
}
