package xmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Event 引擎事件
type Event string

// 引擎事件取值
const (
	EventSegmentFinished     Event = "segment_finished"
	EventSegmentIgnored      Event = "segment_ignored"
	EventSegmentDropped      Event = "segment_dropped"
	EventStackViolation      Event = "stack_violation"
	EventCarrierInvalid      Event = "carrier_invalid"
	EventCorrelationRejected Event = "correlation_rejected"
	EventSpanLimited         Event = "span_limited"
	EventFault               Event = "fault"
)

// 指标名与属性 key
const (
	MetricEvents       = "xwalk.engine.events"
	MetricSegmentSpans = "xwalk.segment.spans"

	AttrEvent     = "event"
	AttrComponent = "component"

	defaultInstrumentationName = "github.com/omeyang/xwalk/xmetrics"
)

// Recorder 引擎指标记录器，实现必须并发安全且不阻塞
type Recorder interface {
	// Record 记录一次事件，component 标识事件来源
	Record(ctx context.Context, event Event, component string)
	// ObserveSegment 记录一个已完成 segment 的 span 数量
	ObserveSegment(ctx context.Context, spans int)
}

// NoopRecorder 不记录任何内容
type NoopRecorder struct{}

// Record 空操作
func (NoopRecorder) Record(context.Context, Event, string) {}

// ObserveSegment 空操作
func (NoopRecorder) ObserveSegment(context.Context, int) {}

type config struct {
	instrumentationName string
	meterProvider       metric.MeterProvider
}

// Option OTel Recorder 配置选项
type Option func(*config)

// WithInstrumentationName 设置 instrumentation 名称
func WithInstrumentationName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.instrumentationName = name
		}
	}
}

// WithMeterProvider 设置 MeterProvider
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *config) {
		if p != nil {
			c.meterProvider = p
		}
	}
}

type otelRecorder struct {
	events metric.Int64Counter
	spans  metric.Int64Histogram
}

// NewOTelRecorder 创建基于 OpenTelemetry 的 Recorder
func NewOTelRecorder(opts ...Option) (Recorder, error) {
	cfg := &config{
		instrumentationName: defaultInstrumentationName,
		meterProvider:       otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	meter := cfg.meterProvider.Meter(cfg.instrumentationName)

	events, err := meter.Int64Counter(
		MetricEvents,
		metric.WithDescription("tracing engine events"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create counter failed: %w", err)
	}
	spans, err := meter.Int64Histogram(
		MetricSegmentSpans,
		metric.WithDescription("spans per finished segment"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("xmetrics: create histogram failed: %w", err)
	}
	return &otelRecorder{events: events, spans: spans}, nil
}

func (r *otelRecorder) Record(ctx context.Context, event Event, component string) {
	if ctx == nil {
		ctx = context.Background()
	}
	r.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrEvent, string(event)),
		attribute.String(AttrComponent, component),
	))
}

func (r *otelRecorder) ObserveSegment(ctx context.Context, spans int) {
	if ctx == nil {
		ctx = context.Background()
	}
	r.spans.Record(ctx, int64(spans))
}
