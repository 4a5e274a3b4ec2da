package xctx

import (
	"context"
	"log/slog"
	"strconv"
)

// 日志属性 key
const (
	KeyTraceID   = "trace_id"
	KeySegmentID = "segment_id"
	KeySpanID    = "span_id"
)

// traceFieldCount 追踪字段数量，用于预分配
const traceFieldCount = 3

// AppendTraceAttrs 将 context 中的追踪标识追加到 attrs，只追加非空字段
func AppendTraceAttrs(attrs []slog.Attr, ctx context.Context) []slog.Attr {
	t, ok := TracerFrom(ctx)
	if !ok {
		return attrs
	}
	traceID := t.TraceID()
	if traceID == "" {
		return attrs
	}
	attrs = append(attrs, slog.String(KeyTraceID, traceID))
	if v := t.SegmentID(); v != "" {
		attrs = append(attrs, slog.String(KeySegmentID, v))
	}
	if id := t.SpanID(); id >= 0 {
		attrs = append(attrs, slog.String(KeySpanID, strconv.FormatInt(int64(id), 10)))
	}
	return attrs
}

// TraceAttrs 返回 context 中的追踪标识属性，没有时返回 nil
func TraceAttrs(ctx context.Context) []slog.Attr {
	attrs := AppendTraceAttrs(make([]slog.Attr, 0, traceFieldCount), ctx)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
