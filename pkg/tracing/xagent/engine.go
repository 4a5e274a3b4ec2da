package xagent

import (
	"context"
	"time"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

const component = "xagent"

// IDGenerator 生成 trace id 与 segment id，实现必须并发安全且不阻塞
type IDGenerator interface {
	Next() string
}

// engine Manager 与其创建的上下文共享的协作者
type engine struct {
	ids      IDGenerator
	registry *xtag.Registry
	logger   xlog.Logger
	recorder xmetrics.Recorder
	matcher  ProfileMatcher
	now      func() time.Time
	// finished 定稿的 segment 交给外部传输协作者，不能阻塞
	finished func(seg *xspan.TraceSegment)
}

func (e *engine) spanOptions() []xspan.Option {
	return []xspan.Option{xspan.WithRegistry(e.registry), xspan.WithClock(e.now)}
}

func (e *engine) segmentFinished(ctx context.Context, seg *xspan.TraceSegment) {
	e.recorder.ObserveSegment(ctx, len(seg.Spans()))
	e.recorder.Record(ctx, xmetrics.EventSegmentFinished, component)
	if e.finished != nil {
		e.finished(seg)
	}
}

func (e *engine) violation(ctx context.Context, span xspan.Span, err error) {
	op := ""
	if span != nil {
		op = span.OperationName()
	}
	e.logger.Error(ctx, "tracing context violation", xlog.Operation(op), xlog.Err(err))
	e.recorder.Record(ctx, xmetrics.EventStackViolation, component)
}
