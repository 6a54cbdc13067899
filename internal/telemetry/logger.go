package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
)

// LogrusHook 将日志条目上下文中的追踪信息写入 trace_id、span_id 字段。
// 只有通过 WithContext 携带上下文的日志条目才会被关联。
type LogrusHook struct{}

// NewLogrusHook 创建日志追踪钩子
//
//	logger.AddHook(telemetry.NewLogrusHook())
func NewLogrusHook() *LogrusHook {
	return &LogrusHook{}
}

// Levels 实现 logrus.Hook，所有级别都会触发
func (h *LogrusHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire 实现 logrus.Hook
func (h *LogrusHook) Fire(entry *logrus.Entry) error {
	if entry.Context == nil {
		return nil
	}
	for k, v := range traceFields(entry.Context) {
		entry.Data[k] = v
	}
	return nil
}

// EntryWithTraceContext 为已有日志条目追加追踪字段
func EntryWithTraceContext(ctx context.Context, entry *logrus.Entry) *logrus.Entry {
	fields := traceFields(ctx)
	if fields == nil {
		return entry
	}
	return entry.WithFields(fields)
}

func traceFields(ctx context.Context) logrus.Fields {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	fields := logrus.Fields{
		"trace_id": sc.TraceID().String(),
		"span_id":  sc.SpanID().String(),
	}
	if sc.IsSampled() {
		fields["trace_sampled"] = true
	}
	return fields
}
