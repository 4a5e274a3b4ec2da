package xspan

import (
	"time"

	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

// Span 插件与拦截层可见的 Span 契约
//
// 所有 setter 均不返回错误：非法调用（如在 LocalSpan 上设置 peer）静默忽略，
// 异步生命周期的误用通过 Owner.ReportViolation 上报，不会打断宿主调用链。
type Span interface {
	// SpanID 返回 segment 内唯一的 span id
	SpanID() int32
	// ParentSpanID 返回父 span id，根 span 为 -1
	ParentSpanID() int32
	Kind() Kind
	IsEntry() bool
	IsExit() bool

	OperationName() string
	SetOperationName(name string)
	SetComponent(c Component)
	SetLayer(l Layer)
	// SetPeer 设置对端地址，LocalSpan 上为空操作
	SetPeer(peer string)

	// Tag 写入类型化标签，同一标签后写覆盖
	Tag(tag xtag.Tag, value string)
	// TagString 按名称写入标签，与 Tag 解析到同一注册表
	//
	// Deprecated: 使用 Tag 与预定义的 xtag 标签。
	TagString(key, value string)

	// Log 记录错误事件并标记 Span 出错
	Log(err error)
	// LogEvent 记录带时间戳的事件
	LogEvent(ts time.Time, fields map[string]any)
	// ErrorOccurred 标记 Span 出错
	ErrorOccurred()

	// Start 以当前时间重置开始时间
	Start()
	// StartAt 以指定时间重置开始时间
	StartAt(t time.Time)

	// Ref 为 Span 追加因果边，重复的边被忽略
	Ref(ref SegmentRef)
	IsProfiling() bool
	// SkipAnalysis 通知后端跳过对该 Span 的分析
	SkipAnalysis()

	// PrepareForAsync 声明该 Span 将在其他 goroutine 上异步结束
	PrepareForAsync()
	// AsyncFinish 异步结束 Span，必须先调用 PrepareForAsync
	AsyncFinish()
}

// Owner Span 所属的追踪上下文
type Owner interface {
	// AwaitFinishAsync 增加待完成的异步计数
	AwaitFinishAsync()
	// AsyncStop 异步 Span 结束，减少计数
	AsyncStop(span Span)
	// IsProfiling 报告所属 segment 是否正在被性能剖析
	IsProfiling() bool
	// ReportViolation 上报 Span 生命周期的误用
	ReportViolation(span Span, err error)
}

// TracingSpan 由 TracingContext 驱动生命周期的 Span
//
// NoopSpan 不实现该接口。
type TracingSpan interface {
	Span
	// Reenter 同类型 Span 嵌套创建时扩展当前 Span 而不是压入新 Span
	Reenter(operationName string)
	// Finish 减少嵌套深度，深度归零时记录结束时间并归档到 segment，返回是否真正结束
	Finish(seg *TraceSegment) bool
	// Transform 映射为外发线上形态
	Transform() SpanObject
}

// =============================================================================
// 选项
// =============================================================================

type options struct {
	registry *xtag.Registry
	now      func() time.Time
}

// Option Span 构造选项
type Option func(*options)

// WithRegistry 指定 TagString 使用的标签注册表，默认 xtag.Default()
func WithRegistry(r *xtag.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithClock 指定时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		registry: xtag.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
