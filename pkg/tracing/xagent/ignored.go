package xagent

import (
	"context"
	"sync"

	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
)

// IgnoredContext 未采样的追踪上下文
//
// 只维护 NoopSpan 栈以保持 Create/Stop 配对，不记录 segment。
// 关联数据仍然传播：上游通过 sw8-correlation 传来的业务数据不因本地未采样而丢失。
type IgnoredContext struct {
	eng *engine

	mu          sync.Mutex
	stack       []xspan.Span
	first       string
	used        bool
	correlation *xcorrelation.Context
}

var _ TracerContext = (*IgnoredContext)(nil)

func newIgnoredContext(eng *engine, s Settings) *IgnoredContext {
	return &IgnoredContext{
		eng:         eng,
		correlation: xcorrelation.New(s.Correlation, xcorrelation.WithRegistry(eng.registry)),
	}
}

// TraceID 未采样时为空
func (*IgnoredContext) TraceID() string { return "" }

// SegmentID 未采样时为空
func (*IgnoredContext) SegmentID() string { return "" }

// SpanID 未采样时为 -1
func (*IgnoredContext) SpanID() int32 { return -1 }

func (ic *IgnoredContext) push(kind xspan.Kind, operationName string) xspan.Span {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if !ic.used {
		ic.used = true
		ic.first = operationName
	}
	span := xspan.NewNoopSpan(kind, operationName)
	ic.stack = append(ic.stack, span)
	return span
}

// CreateEntrySpan 压入 NoopSpan
func (ic *IgnoredContext) CreateEntrySpan(operationName string) xspan.Span {
	return ic.push(xspan.KindEntry, operationName)
}

// CreateLocalSpan 压入 NoopSpan
func (ic *IgnoredContext) CreateLocalSpan(operationName string) xspan.Span {
	return ic.push(xspan.KindLocal, operationName)
}

// CreateExitSpan 压入 NoopSpan
func (ic *IgnoredContext) CreateExitSpan(operationName, _ string) xspan.Span {
	return ic.push(xspan.KindExit, operationName)
}

// ActiveSpan 返回栈顶 NoopSpan
func (ic *IgnoredContext) ActiveSpan() (xspan.Span, bool) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	if n := len(ic.stack); n > 0 {
		return ic.stack[n-1], true
	}
	return nil, false
}

// StopSpan 弹出栈顶，栈变空时返回 true
func (ic *IgnoredContext) StopSpan(span xspan.Span) bool {
	empty, err := ic.pop(span)
	if err != nil {
		ic.eng.violation(context.Background(), span, err)
		return false
	}
	return empty
}

func (ic *IgnoredContext) pop(span xspan.Span) (bool, error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	n := len(ic.stack)
	if n == 0 {
		return false, ErrEmptyStack
	}
	if ic.stack[n-1] != span {
		return false, ErrNotActiveSpan
	}
	ic.stack[n-1] = nil
	ic.stack = ic.stack[:n-1]
	return len(ic.stack) == 0, nil
}

// AwaitFinishAsync 空操作，NoopSpan 不会异步结束
func (*IgnoredContext) AwaitFinishAsync() {}

// AsyncStop 空操作
func (*IgnoredContext) AsyncStop(xspan.Span) {}

// Inject 只传播关联数据，sw8 保持无效
func (ic *IgnoredContext) Inject(c *ContextCarrier) {
	if c == nil {
		return
	}
	c.correlation = ic.correlation.Clone()
}

// Extract 只合并关联数据，sw8 无效时照常计入无效 carrier
func (ic *IgnoredContext) Extract(c *ContextCarrier) {
	if !c.IsValid(V3) {
		ic.eng.recorder.Record(context.Background(), xmetrics.EventCarrierInvalid, component)
	}
	if c == nil {
		return
	}
	ic.correlation.Merge(c.correlation)
}

// Capture 返回只携带关联数据的无效快照
func (ic *IgnoredContext) Capture() *ContextSnapshot {
	return &ContextSnapshot{
		spanID:      -1,
		correlation: ic.correlation.Clone(),
		extension:   &ExtensionContext{},
	}
}

// Continued 只合并关联数据
func (ic *IgnoredContext) Continued(s *ContextSnapshot) {
	if s == nil || s.correlation == nil {
		return
	}
	ic.correlation.Merge(s.correlation)
}

// PrimaryEndpoint 返回首个 Span 的操作名
func (ic *IgnoredContext) PrimaryEndpoint() string {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.first
}

// Correlation 返回关联数据
func (ic *IgnoredContext) Correlation() *xcorrelation.Context { return ic.correlation }

// IsProfiling 未采样的上下文不剖析
func (*IgnoredContext) IsProfiling() bool { return false }

func (ic *IgnoredContext) done() bool {
	ic.mu.Lock()
	defer ic.mu.Unlock()
	return ic.used && len(ic.stack) == 0
}
