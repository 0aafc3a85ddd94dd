package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu            sync.RWMutex
	defaultLogger *zap.SugaredLogger
)

// Setup 初始化进程级日志器
// level: debug/info/warn/error，format: console/json
func Setup(level, format string) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.ToLower(format) != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.DisableStacktrace = true

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	s := l.Sugar()

	mu.Lock()
	defaultLogger = s
	mu.Unlock()
	return s, nil
}

// L 获取默认日志器，未初始化时回退到 info 级别的控制台输出
func L() *zap.SugaredLogger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	l, err := Setup("info", "console")
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l
}

// Replace 替换默认日志器，测试中用于静默输出
func Replace(l *zap.SugaredLogger) {
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}
