package xagent

import (
	"context"
	"sync"

	"github.com/omeyang/xwalk/pkg/context/xctx"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
)

// TracerContext 追踪上下文契约，插件与拦截层的全部编程面
type TracerContext interface {
	xctx.Tracer

	CreateEntrySpan(operationName string) xspan.Span
	CreateLocalSpan(operationName string) xspan.Span
	CreateExitSpan(operationName, peer string) xspan.Span
	// ActiveSpan 返回栈顶 Span
	ActiveSpan() (xspan.Span, bool)
	// StopSpan 停止栈顶 Span，栈变空时返回 true
	StopSpan(span xspan.Span) bool

	// AwaitFinishAsync 声明上下文在调用栈结束后仍保持打开
	AwaitFinishAsync()
	// AsyncStop 异步 Span 结束
	AsyncStop(span xspan.Span)

	Inject(c *ContextCarrier)
	Extract(c *ContextCarrier)
	Capture() *ContextSnapshot
	Continued(s *ContextSnapshot)

	// PrimaryEndpoint 返回 segment 首个 Span 的操作名
	PrimaryEndpoint() string
	Correlation() *xcorrelation.Context
	IsProfiling() bool

	// done 报告上下文是否已结束，结束的上下文不再复用
	done() bool
}

// TracingContext 记录 segment 的追踪上下文
//
// Span 栈由互斥锁保护：上下文通常一次只被一个 goroutine 持有，
// 但异步 Span 的结束与关联数据的写入可能来自任意 goroutine。
//
// 设计决策: 同类型嵌套的 Entry 与 Exit 扩展栈顶 Span 而不压入新 Span。
// Entry 嵌套时最内层的操作名生效，Exit 嵌套时最外层生效；Local 总是压入新 Span。
type TracingContext struct {
	eng      *engine
	settings Settings
	segment  *xspan.TraceSegment
	spanOpts []xspan.Option
	profile  profileState

	mu           sync.Mutex
	stack        []xspan.Span
	first        xspan.Span
	nextSpanID   int32
	created      int
	asyncPending int
	traceAdopted bool
	finished     bool
	correlation  *xcorrelation.Context
	extension    *ExtensionContext
}

var _ TracerContext = (*TracingContext)(nil)
var _ xspan.Owner = (*TracingContext)(nil)

func newTracingContext(eng *engine, s Settings) *TracingContext {
	tc := &TracingContext{
		eng:       eng,
		settings:  s,
		segment:   xspan.NewTraceSegment(eng.ids.Next(), eng.ids.Next(), s.ServiceName, s.InstanceName),
		spanOpts:  eng.spanOptions(),
		extension: &ExtensionContext{},
	}
	tc.correlation = xcorrelation.New(s.Correlation,
		xcorrelation.WithRegistry(eng.registry),
		xcorrelation.WithActiveSpan(tc.activeTagSink))
	return tc
}

// =============================================================================
// 身份
// =============================================================================

// TraceID 返回全局 trace id
func (tc *TracingContext) TraceID() string { return tc.segment.TraceID() }

// SegmentID 返回 segment id
func (tc *TracingContext) SegmentID() string { return tc.segment.ID() }

// SpanID 返回活跃 span id，没有时为 -1
func (tc *TracingContext) SpanID() int32 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if s, ok := tc.activeTracing(); ok {
		return s.SpanID()
	}
	return -1
}

// Segment 返回正在记录的 segment
func (tc *TracingContext) Segment() *xspan.TraceSegment { return tc.segment }

// PrimaryEndpoint 返回首个 Span 的操作名
func (tc *TracingContext) PrimaryEndpoint() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.primaryEndpoint()
}

func (tc *TracingContext) primaryEndpoint() string {
	if tc.first == nil {
		return ""
	}
	return tc.first.OperationName()
}

// Correlation 返回关联数据
func (tc *TracingContext) Correlation() *xcorrelation.Context { return tc.correlation }

// IsProfiling 报告 segment 是否正在被剖析
func (tc *TracingContext) IsProfiling() bool { return tc.profile.get().IsProfiling() }

// ProfileStatus 返回剖析状态
func (tc *TracingContext) ProfileStatus() ProfileStatus { return tc.profile.get() }

func (tc *TracingContext) done() bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.finished
}

// logContext 绑定自身的 ctx，日志据此补充 trace 字段
func (tc *TracingContext) logContext() context.Context {
	ctx, err := xctx.WithTracer(context.Background(), tc)
	if err != nil {
		return context.Background()
	}
	return ctx
}

// =============================================================================
// Span 栈
// =============================================================================

// top 返回栈顶，调用方持有 tc.mu
func (tc *TracingContext) top() xspan.Span {
	if n := len(tc.stack); n > 0 {
		return tc.stack[n-1]
	}
	return nil
}

// activeTracing 返回最上层的真实 Span，跳过超限后压入的 NoopSpan，调用方持有 tc.mu
func (tc *TracingContext) activeTracing() (xspan.TracingSpan, bool) {
	for i := len(tc.stack) - 1; i >= 0; i-- {
		if s, ok := tc.stack[i].(xspan.TracingSpan); ok {
			return s, true
		}
	}
	return nil, false
}

func (tc *TracingContext) activeTagSink() xcorrelation.TagSink {
	span, ok := tc.ActiveSpan()
	if !ok {
		return nil
	}
	return span
}

// ActiveSpan 返回栈顶 Span
func (tc *TracingContext) ActiveSpan() (xspan.Span, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	top := tc.top()
	return top, top != nil
}

// CreateEntrySpan 创建入站 Span，栈顶已是 EntrySpan 时扩展它
func (tc *TracingContext) CreateEntrySpan(operationName string) xspan.Span {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if parent, ok := tc.top().(xspan.TracingSpan); ok && parent.IsEntry() {
		parent.Reenter(operationName)
		return parent
	}
	return tc.push(xspan.KindEntry, operationName, "")
}

// CreateLocalSpan 创建进程内 Span
func (tc *TracingContext) CreateLocalSpan(operationName string) xspan.Span {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.push(xspan.KindLocal, operationName, "")
}

// CreateExitSpan 创建出站 Span，栈顶已是 ExitSpan 时扩展它，peer 与操作名保持外层的值
func (tc *TracingContext) CreateExitSpan(operationName, peer string) xspan.Span {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if parent, ok := tc.top().(xspan.TracingSpan); ok && parent.IsExit() {
		parent.Reenter(operationName)
		return parent
	}
	return tc.push(xspan.KindExit, operationName, peer)
}

// push 压入新 Span，调用方持有 tc.mu
func (tc *TracingContext) push(kind xspan.Kind, operationName, peer string) xspan.Span {
	if tc.finished || tc.created >= tc.settings.SpanLimitPerSegment {
		if !tc.finished && !tc.segment.IsSizeLimited() {
			tc.segment.MarkSizeLimited()
			tc.eng.recorder.Record(context.Background(), xmetrics.EventSpanLimited, component)
		}
		noop := xspan.NewNoopSpan(kind, operationName)
		tc.stack = append(tc.stack, noop)
		return noop
	}

	parentID := int32(-1)
	if parent, ok := tc.activeTracing(); ok {
		parentID = parent.SpanID()
	}
	id := tc.nextSpanID
	tc.nextSpanID++
	tc.created++

	var span xspan.TracingSpan
	switch kind {
	case xspan.KindEntry:
		span = xspan.NewEntrySpan(id, parentID, operationName, tc, tc.spanOpts...)
	case xspan.KindExit:
		span = xspan.NewExitSpan(id, parentID, operationName, peer, tc, tc.spanOpts...)
	default:
		span = xspan.NewLocalSpan(id, parentID, operationName, tc, tc.spanOpts...)
	}

	if tc.first == nil {
		tc.first = span
		if tc.eng.matcher != nil && tc.eng.matcher(operationName) {
			tc.profile.set(ProfileProfiling)
		}
	}
	tc.stack = append(tc.stack, span)
	return span
}

// StopSpan 停止栈顶 Span
//
// span 不是栈顶时上报违规并保持上下文打开；栈变空时返回 true。
// segment 在栈为空且没有未完成的异步 Span 时定稿，且只定稿一次。
func (tc *TracingContext) StopSpan(span xspan.Span) bool {
	empty, finish, err := tc.pop(span)
	if err != nil {
		tc.ReportViolation(span, err)
		return false
	}
	if finish {
		tc.eng.segmentFinished(tc.logContext(), tc.segment)
	}
	return empty
}

// pop 弹出栈顶并判断是否定稿
//
// 设计决策: 所有持锁区都收敛到这类 defer 解锁的小函数里，日志与回调放在锁外。
// Span 内部 panic 被 Manager 恢复时锁已释放，恢复路径上的日志可以安全读取上下文。
func (tc *TracingContext) pop(span xspan.Span) (empty, finish bool, err error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	n := len(tc.stack)
	if n == 0 {
		return false, false, ErrEmptyStack
	}
	if tc.stack[n-1] != span {
		return false, false, ErrNotActiveSpan
	}

	popped := true
	if ts, ok := span.(xspan.TracingSpan); ok {
		popped = ts.Finish(tc.segment)
	}
	if popped {
		tc.stack[n-1] = nil
		tc.stack = tc.stack[:n-1]
	}
	return len(tc.stack) == 0, tc.markFinished(), nil
}

// markFinished 判断并标记定稿，调用方持有 tc.mu
func (tc *TracingContext) markFinished() bool {
	if tc.finished || len(tc.stack) > 0 || tc.asyncPending > 0 || tc.created == 0 {
		return false
	}
	tc.finished = true
	return true
}

// =============================================================================
// 异步
// =============================================================================

// AwaitFinishAsync 增加未完成的异步计数
func (tc *TracingContext) AwaitFinishAsync() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.asyncPending++
}

// AsyncStop 异步 Span 结束，计数归零且栈为空时定稿
func (tc *TracingContext) AsyncStop(span xspan.Span) {
	finish, err := tc.releaseAsync()
	if err != nil {
		tc.ReportViolation(span, err)
		return
	}
	if finish {
		tc.eng.segmentFinished(tc.logContext(), tc.segment)
	}
}

func (tc *TracingContext) releaseAsync() (finish bool, err error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if tc.asyncPending == 0 {
		return false, ErrAsyncUnderflow
	}
	tc.asyncPending--
	return tc.markFinished(), nil
}

// ReportViolation 记录生命周期误用，不打断调用方
func (tc *TracingContext) ReportViolation(span xspan.Span, err error) {
	tc.eng.violation(tc.logContext(), span, err)
}

// =============================================================================
// 跨进程
// =============================================================================

// Inject 以当前 segment 身份填充 carrier，必须在 ExitSpan 活跃时调用
func (tc *TracingContext) Inject(c *ContextCarrier) {
	if c == nil {
		return
	}
	if top, err := tc.fill(c); err != nil {
		tc.ReportViolation(top, err)
	}
}

// fill 持锁填充 carrier，栈顶不是 ExitSpan 时返回栈顶与错误
func (tc *TracingContext) fill(c *ContextCarrier) (xspan.Span, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	top := tc.top()
	exit, ok := top.(xspan.TracingSpan)
	if !ok || !exit.IsExit() {
		// 超限后的 NoopSpan 出站不传播，也不算误用
		if top != nil && top.IsExit() {
			return nil, nil
		}
		return top, ErrInjectWithoutExit
	}
	peer := ""
	if p, ok := exit.(interface{ Peer() string }); ok {
		peer = p.Peer()
	}
	c.fields = CarrierFields{
		TraceID:               tc.segment.TraceID(),
		SegmentID:             tc.segment.ID(),
		SpanID:                exit.SpanID(),
		ParentService:         tc.settings.ServiceName,
		ParentServiceInstance: tc.settings.InstanceName,
		ParentEndpoint:        tc.primaryEndpoint(),
		AddressUsedAtClient:   peer,
	}
	c.correlation = tc.correlation.Clone()
	tc.extension.inject(c)
	return nil, nil
}

// Extract 消费入站 carrier：构建跨进程 ref，采纳上游 trace id，合并关联与扩展数据
//
// 无效 carrier 视为没有上游 trace，但其中的关联数据仍然合并：各传播头相互独立。
func (tc *TracingContext) Extract(c *ContextCarrier) {
	if !c.IsValid(V3) {
		tc.eng.recorder.Record(context.Background(), xmetrics.EventCarrierInvalid, component)
		if c != nil {
			tc.mergeCorrelation(c.correlation)
		}
		return
	}
	f := c.fields
	ref := xspan.NewCrossProcessRef(xspan.ProcessRef{
		TraceID:               f.TraceID,
		ParentSegmentID:       f.SegmentID,
		ParentSpanID:          f.SpanID,
		ParentService:         f.ParentService,
		ParentServiceInstance: f.ParentServiceInstance,
		ParentEndpoint:        f.ParentEndpoint,
		AddressUsedAtClient:   f.AddressUsedAtClient,
	})

	ext := c.Extension()
	active, hasActive := tc.attach(ref, f.TraceID, func() {
		tc.correlation.Merge(c.correlation)
		tc.extension.extract(c)
	})
	if !hasActive {
		return
	}
	if active.IsEntry() {
		active.Ref(ref)
	}
	tc.correlation.Handle(active)
	ext.handle(active, tc.eng.now())
}

// attach 持锁记录 ref、采纳 trace id 并执行 merge，返回当前活跃的真实 Span
func (tc *TracingContext) attach(ref xspan.SegmentRef, traceID string, merge func()) (xspan.TracingSpan, bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.segment.Ref(ref)
	tc.adoptTrace(traceID)
	merge()
	return tc.activeTracing()
}

// mergeCorrelation 只合并关联数据并对活跃 Span 补打自动标签
func (tc *TracingContext) mergeCorrelation(src *xcorrelation.Context) {
	if src == nil || src.Len() == 0 {
		return
	}
	tc.correlation.Merge(src)
	if span, ok := tc.ActiveSpan(); ok {
		tc.correlation.Handle(span)
	}
}

// adoptTrace 采纳上游 trace id，只发生一次，调用方持有 tc.mu
func (tc *TracingContext) adoptTrace(traceID string) {
	if tc.traceAdopted {
		return
	}
	tc.segment.RelatedGlobalTrace(traceID)
	tc.traceAdopted = true
}

// =============================================================================
// 跨 goroutine
// =============================================================================

// Capture 捕获当前状态的快照
func (tc *TracingContext) Capture() *ContextSnapshot {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	spanID := int32(-1)
	if s, ok := tc.activeTracing(); ok {
		spanID = s.SpanID()
	}
	return &ContextSnapshot{
		traceID:        tc.segment.TraceID(),
		segmentID:      tc.segment.ID(),
		spanID:         spanID,
		parentEndpoint: tc.primaryEndpoint(),
		correlation:    tc.correlation.Clone(),
		extension:      tc.extension.clone(),
		profile:        tc.profile.get(),
	}
}

// Continued 消费快照：构建跨线程 ref，采纳 trace id，合并关联、扩展与剖析状态
//
// 无效快照（来自未采样的上下文）只合并关联数据。
func (tc *TracingContext) Continued(s *ContextSnapshot) {
	if s == nil {
		return
	}
	if !s.IsValid() {
		tc.mergeCorrelation(s.correlation)
		return
	}
	if s.IsFromCurrent(tc) {
		return
	}
	ref := xspan.NewCrossThreadRef(xspan.ThreadRef{
		TraceID:         s.traceID,
		ParentSegmentID: s.segmentID,
		ParentSpanID:    s.spanID,
		ParentEndpoint:  s.parentEndpoint,
	}, tc.settings.ServiceName, tc.settings.InstanceName)

	skip := s.extension != nil && s.extension.skipAnalysis
	active, hasActive := tc.attach(ref, s.traceID, func() {
		tc.correlation.Merge(s.correlation)
		if skip {
			tc.extension.skipAnalysis = true
		}
		tc.profile.adopt(s.profile)
	})
	if !hasActive {
		return
	}
	active.Ref(ref)
	tc.correlation.Handle(active)
	if skip {
		active.SkipAnalysis()
	}
}
