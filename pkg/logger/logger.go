// 文件: pkg/logger/logger.go
// 日志初始化 + gorm 日志适配
//
// 全局使用 logrus 标准 logger，各组件直接 log.WithFields(...)

package logger

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// Config 日志配置
type Config struct {
	Level  string `yaml:"level"`  // trace / debug / info / warn / error
	Format string `yaml:"format"` // text / json
}

// Init 设置全局 logger 的级别和格式
func Init(cfg Config) error {
	level := log.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		l, err := log.ParseLevel(s)
		if err != nil {
			return fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "text":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339Nano})
	case "json":
		log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	default:
		return fmt.Errorf("log format %q: want text or json", cfg.Format)
	}

	log.SetOutput(os.Stdout)
	log.SetLevel(level)
	return nil
}

// =============================================================================
// gorm 日志适配
// =============================================================================

// SlowQuery 超过该耗时的 SQL 按 warn 记录
const SlowQuery = 200 * time.Millisecond

var _ gormlogger.Interface = (*GormLogger)(nil)

// GormLogger 把 gorm 的 SQL 日志转到 logrus
type GormLogger struct {
	logger *log.Logger
	level  gormlogger.LogLevel
}

// NewGormLogger 使用全局 logger，默认只记录错误和慢查询
func NewGormLogger() *GormLogger {
	return &GormLogger{logger: log.StandardLogger(), level: gormlogger.Warn}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.level = level
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		l.logger.WithContext(ctx).Infof(msg, data...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.logger.WithContext(ctx).Warnf(msg, data...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		l.logger.WithContext(ctx).Errorf(msg, data...)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	entry := l.logger.WithContext(ctx).WithFields(log.Fields{
		"elapsed": elapsed,
		"rows":    rows,
		"sql":     sql,
	})

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound) && l.level >= gormlogger.Error:
		entry.Error(err)
	case elapsed > SlowQuery && l.level >= gormlogger.Warn:
		entry.Warnf("SLOW SQL >= %v", SlowQuery)
	case l.level >= gormlogger.Info:
		entry.Info("SQL")
	}
}
