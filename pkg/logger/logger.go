// Package logger 提供进程级结构化日志（zap），并保留 InfoJ/ErrorJ 这类
// "topic + 字段表" 的调用方式。
package logger

import (
	"sort"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config 控制日志级别与编码格式。
type Config struct {
	Level    string `json:"level"`    // debug|info|warn|error
	Encoding string `json:"encoding"` // json|console
}

var (
	mu    sync.RWMutex
	base  *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	l, err := build(Config{})
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

func build(c Config) (*zap.Logger, error) {
	if c.Level != "" {
		if err := level.UnmarshalText([]byte(c.Level)); err != nil {
			return nil, err
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Sampling = nil
	cfg.DisableStacktrace = true
	if c.Encoding != "" {
		cfg.Encoding = c.Encoding
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build(zap.AddCallerSkip(2))
}

// Init 按配置重建全局 logger。
func Init(c Config) error {
	l, err := build(c)
	if err != nil {
		return err
	}
	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// SetLevel 动态调整级别。
func SetLevel(l string) error { return level.UnmarshalText([]byte(l)) }

// Replace 安装给定 logger（测试常用），返回恢复函数。
func Replace(l *zap.Logger) (restore func()) {
	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	return func() {
		mu.Lock()
		base = old
		mu.Unlock()
	}
}

// L 返回当前底层 zap logger。
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Sync flushes buffered entries.
func Sync() error { return L().Sync() }

func Debug(msg string) { write(zapcore.DebugLevel, msg, nil) }
func Info(msg string)  { write(zapcore.InfoLevel, msg, nil) }
func Warn(msg string)  { write(zapcore.WarnLevel, msg, nil) }
func Error(msg string) { write(zapcore.ErrorLevel, msg, nil) }

// InfoJ 以 topic 为消息、fields 为结构化字段输出一条记录。
func InfoJ(topic string, fields map[string]any)  { write(zapcore.InfoLevel, topic, fields) }
func WarnJ(topic string, fields map[string]any)  { write(zapcore.WarnLevel, topic, fields) }
func ErrorJ(topic string, fields map[string]any) { write(zapcore.ErrorLevel, topic, fields) }

func write(lvl zapcore.Level, msg string, fields map[string]any) {
	ce := L().Check(lvl, msg)
	if ce == nil {
		return
	}
	if len(fields) == 0 {
		ce.Write(zap.String("topic", msg))
		return
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	zf := make([]zap.Field, 0, len(keys)+1)
	zf = append(zf, zap.String("topic", msg))
	for _, k := range keys {
		zf = append(zf, zap.Any(k, fields[k]))
	}
	ce.Write(zf...)
}
