package xctx

import (
	"context"
	"errors"
)

// contextKey 包私有 key 类型，避免与其他包冲突
type contextKey string

const keyTracer contextKey = "xwalk_tracer"

var (
	// ErrNilContext 传入的 context 为 nil
	ErrNilContext = errors.New("xctx: nil context")

	// ErrNilTracer 传入的 Tracer 为 nil
	ErrNilTracer = errors.New("xctx: nil tracer")

	// ErrMissingTracer context 中没有追踪上下文
	ErrMissingTracer = errors.New("xctx: missing tracer")
)

// Tracer 追踪上下文的最小身份视图
type Tracer interface {
	// TraceID 返回全局 trace id，未采样时为空
	TraceID() string
	// SegmentID 返回当前 segment id，未采样时为空
	SegmentID() string
	// SpanID 返回活跃 span id，没有活跃 span 时为 -1
	SpanID() int32
}

// WithTracer 将追踪上下文写入 context
func WithTracer(ctx context.Context, t Tracer) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if t == nil {
		return nil, ErrNilTracer
	}
	return context.WithValue(ctx, keyTracer, t), nil
}

// TracerFrom 从 context 读取追踪上下文
func TracerFrom(ctx context.Context) (Tracer, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(keyTracer).(Tracer)
	return t, ok && t != nil
}

// RequireTracer 从 context 读取追踪上下文，不存在时返回错误
func RequireTracer(ctx context.Context) (Tracer, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	t, ok := TracerFrom(ctx)
	if !ok {
		return nil, ErrMissingTracer
	}
	return t, nil
}

// TraceID 返回 context 中的 trace id，不存在时为空
func TraceID(ctx context.Context) string {
	if t, ok := TracerFrom(ctx); ok {
		return t.TraceID()
	}
	return ""
}

// WithoutTracer 返回屏蔽了追踪上下文的 context
//
// 用于需要在同一调用链内开启一条全新 trace 的场景。
func WithoutTracer(ctx context.Context) (context.Context, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	return context.WithValue(ctx, keyTracer, nil), nil
}
