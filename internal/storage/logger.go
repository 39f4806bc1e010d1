package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"prproxy/internal/ctxkeys"
	"prproxy/internal/logger"
)

// slowQuery 慢查询阈值
const slowQuery = 200 * time.Millisecond

// GormLogger 将 GORM 日志转发到项目日志器
type GormLogger struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

// NewGormLogger 创建 GORM 日志适配器，默认只记录警告及以上
func NewGormLogger(l logger.Logger) *GormLogger {
	return &GormLogger{log: l.With("module", "gorm"), level: gormlogger.Warn}
}

// LogMode 设置日志级别
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

// Info 打印info级别日志
func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.log.Info(msg, withTrace(ctx, "data", data)...)
	}
}

// Warn 打印warn级别日志
func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(msg, withTrace(ctx, "data", data)...)
	}
}

// Error 打印error级别日志
func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.log.Error(msg, withTrace(ctx, "data", data)...)
	}
}

// Trace 打印SQL日志
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := withTrace(ctx, "sql", sql, "rows", rows, "timeMs", float64(elapsed.Nanoseconds())/1e6)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		g.log.Err(err, "SQL执行错误", fields...)
	case elapsed > slowQuery && g.level >= gormlogger.Warn:
		g.log.Warn("慢SQL查询", append(fields, "threshold", slowQuery)...)
	case g.level == gormlogger.Info:
		g.log.Debug("SQL执行", fields...)
	}
}

// withTrace 在字段前附加上下文中的追踪ID与页面标识
func withTrace(ctx context.Context, kv ...any) []any {
	fields := make([]any, 0, len(kv)+4)
	if id, ok := ctx.Value(ctxkeys.TraceIDKey{}).(string); ok {
		fields = append(fields, "traceId", id)
	}
	if page := ctx.Value(ctxkeys.PageIDKey{}); page != nil {
		fields = append(fields, "pageID", page)
	}
	return append(fields, kv...)
}
