// Package storage 基于 sqlite 的持久化：设置键值、远端 CDM 注册表与提取结果。
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"prproxy/internal/config"
	"prproxy/internal/logger"
)

// Open 打开数据库并迁移表结构
func Open(cfg config.SqliteConfig, l logger.Logger) (*gorm.DB, error) {
	if l == nil {
		l = logger.NewNop()
	}
	if dir := filepath.Dir(cfg.Dsn); cfg.Dsn != "" && !isMemory(cfg.Dsn) && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(cfg.Dsn), &gorm.Config{
		Logger:         NewGormLogger(l),
		NamingStrategy: schema.NamingStrategy{TablePrefix: cfg.Prefix, SingularTable: true},
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.Dsn, err)
	}
	if err := db.AutoMigrate(&Setting{}, &LogRecord{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	l.Debug("数据库已就绪", "dsn", cfg.Dsn, "prefix", cfg.Prefix)
	return db, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.HasPrefix(dsn, "file:")
}
