// Package logging 以 zap 作为输出后端构造 slog.Logger，其余包只依赖 log/slog。
package logging

import (
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// ParseLevel 将配置中的级别名转换为 zapcore.Level，未知取值按 info 处理。
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New 构造 JSON 格式的生产配置 logger；调用方负责在退出前 Sync。
func New(level string) (*zap.Logger, *slog.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	zl, err := cfg.Build()
	if err != nil {
		return nil, nil, err
	}
	return zl, FromZap(zl), nil
}

// FromZap 把已有的 zap.Logger 桥接为 slog.Logger。
func FromZap(zl *zap.Logger) *slog.Logger {
	return slog.New(zapslog.NewHandler(zl.Core()))
}
