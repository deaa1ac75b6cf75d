package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var root zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	root = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 设置全局日志的服务名字段，由 bootstrap 在启动时调用一次。
func Init(serviceName string) {
	root = zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Logger 返回根日志实例。
func Logger() *zerolog.Logger {
	return &root
}

// Ctx 返回一个带有链路信息的日志实例。
// 如果 ctx 中存在有效的 Span，日志会自动附带 trace_id / span_id，
// 便于在 Jaeger 和日志系统之间相互跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	span := trace.SpanFromContext(ctx)
	sc := span.SpanContext()
	if !sc.IsValid() {
		return &root
	}
	l := root.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
	return &l
}
