package logger

import (
	"context"

	"go.uber.org/zap"

	"foco/pkg/trace"
)

// New 按级别创建 logger；debug 级别使用开发模式的控制台输出
func New(level string) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if level == "debug" {
		l, err = zap.NewDevelopment()
	} else {
		cfg := zap.NewProductionConfig()
		if lvl, parseErr := zap.ParseAtomicLevel(level); parseErr == nil {
			cfg.Level = lvl
		}
		l, err = cfg.Build()
	}
	if err != nil {
		panic(err)
	}
	return l
}

// WithTrace 从 context 中提取 trace_id 并添加到 logger
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	traceID := trace.FromContext(ctx)
	if traceID != "" {
		return logger.With(zap.String("trace_id", traceID))
	}
	return logger
}
