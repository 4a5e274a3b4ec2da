package xagent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/omeyang/xwalk/pkg/context/xctx"
	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/observability/xsampling"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xdispatch"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
	"github.com/omeyang/xwalk/pkg/util/xid"
)

// Manager 追踪引擎入口
//
// 替代进程级单例：显式构造后传给依赖方，Start/Close 管理投递 worker 的生命周期。
// 当前追踪上下文绑定在 context.Context 上，Create* 方法返回绑定后的 ctx。
//
// 所有方法对 nil Manager 安全，内部 panic 被恢复并记录，宿主调用链不会观察到异常。
type Manager struct {
	eng        *engine
	settings   atomic.Pointer[Settings]
	sampler    xsampling.Sampler
	dispatcher *xdispatch.Dispatcher
	closeOnce  sync.Once
}

// forceSampler 需要知道被强制采样的 trace 的采样器，如 WindowSampler
type forceSampler interface {
	ForceSampled()
}

// New 创建 Manager
func New(opts ...Option) (*Manager, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}

	base := o.logger
	if base == nil {
		base = xlog.Default()
	}
	logger := base.With(xlog.Component(component))

	ids := o.ids
	if ids == nil {
		gen, err := xid.NewGenerator()
		if err != nil {
			logger.Warn(context.Background(), "id generator unavailable, using fallback", xlog.Err(err))
			gen = xid.NewFallbackGenerator()
		}
		ids = gen
	}

	m := &Manager{
		eng: &engine{
			ids:      ids,
			registry: o.registry,
			logger:   logger,
			recorder: o.recorder,
			matcher:  o.matcher,
			now:      o.now,
		},
		sampler: o.sampler,
	}
	s := o.settings
	m.settings.Store(&s)

	if o.listener != nil {
		dopts := append([]xdispatch.Option{
			xdispatch.WithLogger(base),
			xdispatch.WithRecorder(o.recorder),
		}, o.dispatchOpts...)
		d, err := xdispatch.New(o.listener, dopts...)
		if err != nil {
			return nil, err
		}
		m.dispatcher = d
		m.eng.finished = d.AfterFinished
	}
	return m, nil
}

// Start 启动 segment 投递
func (m *Manager) Start() error {
	if m == nil {
		return nil
	}
	if m.dispatcher != nil {
		m.dispatcher.Start()
	}
	return nil
}

// Close 停止投递并等待队列排空，幂等
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.closeOnce.Do(func() {
		if m.dispatcher != nil {
			m.dispatcher.Stop()
		}
	})
	return nil
}

// Settings 返回当前运行参数
func (m *Manager) Settings() Settings {
	if m == nil {
		return DefaultSettings()
	}
	return *m.settings.Load()
}

// UpdateSettings 替换运行参数，只影响之后新建的上下文
//
// nil Manager 上只做校验。
func (m *Manager) UpdateSettings(s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	m.settings.Store(&s)
	m.eng.logger.Info(context.Background(), "settings updated",
		slog.String("service", s.ServiceName),
		slog.String("instance", s.InstanceName),
		slog.Int("span_limit", s.SpanLimitPerSegment))
	return nil
}

// NewCarrier 按当前关联数据上限创建空 carrier
func (m *Manager) NewCarrier() *ContextCarrier {
	if m == nil {
		return NewContextCarrier(xcorrelation.DefaultLimits())
	}
	return NewContextCarrier(m.Settings().Correlation)
}

// =============================================================================
// 上下文绑定
// =============================================================================

// ContextFrom 读取 ctx 绑定的追踪上下文
func ContextFrom(ctx context.Context) (TracerContext, bool) {
	t, ok := xctx.TracerFrom(ctx)
	if !ok {
		return nil, false
	}
	tc, ok := t.(TracerContext)
	return tc, ok
}

func bind(ctx context.Context, tc TracerContext) context.Context {
	if cur, ok := ContextFrom(ctx); ok && cur == tc {
		return ctx
	}
	out, err := xctx.WithTracer(ctx, tc)
	if err != nil {
		return ctx
	}
	return out
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// getOrCreate 复用 ctx 上未结束的上下文，否则新建；force 跳过采样
func (m *Manager) getOrCreate(ctx context.Context, operationName string, force bool) TracerContext {
	if tc, ok := ContextFrom(ctx); ok && !tc.done() {
		return tc
	}
	s := m.Settings()
	if !force && !m.sampler.ShouldSample(xsampling.WithOperation(ctx, operationName)) {
		m.eng.recorder.Record(ctx, xmetrics.EventSegmentIgnored, component)
		return newIgnoredContext(m.eng, s)
	}
	if force {
		if fs, ok := m.sampler.(forceSampler); ok {
			fs.ForceSampled()
		}
	}
	return newTracingContext(m.eng, s)
}

// recovered 记录边界处恢复的故障，r 为 nil 时返回 false
func (m *Manager) recovered(ctx context.Context, op string, r any) bool {
	if r == nil {
		return false
	}
	m.eng.logger.Error(ctx, "engine fault recovered",
		xlog.Operation(op), xlog.Panic(r), slog.String("stack", string(debug.Stack())))
	m.eng.recorder.Record(ctx, xmetrics.EventFault, component)
	return true
}

// =============================================================================
// Span 操作
// =============================================================================

// CreateEntrySpan 创建入站 Span
//
// carrier 有效时强制记录并在 Span 创建后提取上游身份；carrier 可以为 nil。
func (m *Manager) CreateEntrySpan(ctx context.Context, operationName string, carrier *ContextCarrier) (out context.Context, span xspan.Span) {
	ctx = orBackground(ctx)
	if m == nil {
		return ctx, xspan.NewNoopSpan(xspan.KindEntry, operationName)
	}
	defer func() {
		if m.recovered(ctx, "CreateEntrySpan", recover()) {
			out, span = ctx, xspan.NewNoopSpan(xspan.KindEntry, operationName)
		}
	}()

	tc := m.getOrCreate(ctx, operationName, carrier.IsValid(V3))
	span = tc.CreateEntrySpan(operationName)
	// 无效 carrier 也要提取：sw8 缺失时 sw8-correlation 仍可能存在
	if carrier != nil {
		tc.Extract(carrier)
	}
	return bind(ctx, tc), span
}

// CreateLocalSpan 创建进程内 Span
func (m *Manager) CreateLocalSpan(ctx context.Context, operationName string) (out context.Context, span xspan.Span) {
	ctx = orBackground(ctx)
	if m == nil {
		return ctx, xspan.NewNoopSpan(xspan.KindLocal, operationName)
	}
	defer func() {
		if m.recovered(ctx, "CreateLocalSpan", recover()) {
			out, span = ctx, xspan.NewNoopSpan(xspan.KindLocal, operationName)
		}
	}()

	tc := m.getOrCreate(ctx, operationName, false)
	span = tc.CreateLocalSpan(operationName)
	return bind(ctx, tc), span
}

// CreateExitSpan 创建出站 Span，carrier 非 nil 时注入当前身份供下游使用
func (m *Manager) CreateExitSpan(ctx context.Context, operationName, peer string, carrier *ContextCarrier) (out context.Context, span xspan.Span) {
	ctx = orBackground(ctx)
	if m == nil {
		return ctx, xspan.NewNoopSpan(xspan.KindExit, operationName)
	}
	defer func() {
		if m.recovered(ctx, "CreateExitSpan", recover()) {
			out, span = ctx, xspan.NewNoopSpan(xspan.KindExit, operationName)
		}
	}()

	tc := m.getOrCreate(ctx, operationName, false)
	span = tc.CreateExitSpan(operationName, peer)
	if carrier != nil {
		tc.Inject(carrier)
	}
	return bind(ctx, tc), span
}

// ActiveSpan 返回 ctx 上的活跃 Span
func (m *Manager) ActiveSpan(ctx context.Context) (span xspan.Span, ok bool) {
	if m == nil {
		return nil, false
	}
	ctx = orBackground(ctx)
	defer func() {
		if m.recovered(ctx, "ActiveSpan", recover()) {
			span, ok = nil, false
		}
	}()
	tc, found := ContextFrom(ctx)
	if !found {
		return nil, false
	}
	return tc.ActiveSpan()
}

// StopSpan 停止 Span，segment 的 Span 栈变空时返回 true
func (m *Manager) StopSpan(ctx context.Context, span xspan.Span) (empty bool) {
	if m == nil || span == nil {
		return false
	}
	ctx = orBackground(ctx)
	defer func() {
		if m.recovered(ctx, "StopSpan", recover()) {
			empty = false
		}
	}()
	tc, ok := ContextFrom(ctx)
	if !ok {
		m.eng.violation(ctx, span, ErrNoContext)
		return false
	}
	return tc.StopSpan(span)
}

// =============================================================================
// 传播
// =============================================================================

// Inject 将 ctx 的追踪身份注入 carrier，需要活跃的 ExitSpan
func (m *Manager) Inject(ctx context.Context, carrier *ContextCarrier) {
	if m == nil || carrier == nil {
		return
	}
	ctx = orBackground(ctx)
	defer func() { m.recovered(ctx, "Inject", recover()) }()
	if tc, ok := ContextFrom(ctx); ok {
		tc.Inject(carrier)
	}
}

// Extract 将 carrier 提取到 ctx 的追踪上下文，没有时新建
func (m *Manager) Extract(ctx context.Context, carrier *ContextCarrier) (out context.Context) {
	ctx = orBackground(ctx)
	if m == nil || carrier == nil {
		return ctx
	}
	defer func() {
		if m.recovered(ctx, "Extract", recover()) {
			out = ctx
		}
	}()
	tc := m.getOrCreate(ctx, "", carrier.IsValid(V3))
	tc.Extract(carrier)
	return bind(ctx, tc)
}

// Capture 捕获 ctx 的追踪快照，没有追踪上下文时返回 nil
func (m *Manager) Capture(ctx context.Context) (snap *ContextSnapshot) {
	if m == nil {
		return nil
	}
	ctx = orBackground(ctx)
	defer func() {
		if m.recovered(ctx, "Capture", recover()) {
			snap = nil
		}
	}()
	tc, ok := ContextFrom(ctx)
	if !ok {
		return nil
	}
	return tc.Capture()
}

// Continued 在 ctx 上延续快照，返回绑定了追踪上下文的 ctx
//
// 快照来自 ctx 自身的上下文，或快照无效且不携带关联数据时原样返回。
// 未采样上下文的快照只延续关联数据，ctx 上没有可用上下文时绑定新的未采样上下文。
func (m *Manager) Continued(ctx context.Context, snap *ContextSnapshot) (out context.Context) {
	ctx = orBackground(ctx)
	if m == nil || snap == nil {
		return ctx
	}
	defer func() {
		if m.recovered(ctx, "Continued", recover()) {
			out = ctx
		}
	}()
	if !snap.IsValid() {
		if snap.correlation == nil || snap.correlation.Len() == 0 {
			return ctx
		}
		tc, ok := ContextFrom(ctx)
		if !ok || tc.done() {
			tc = newIgnoredContext(m.eng, m.Settings())
		}
		tc.Continued(snap)
		return bind(ctx, tc)
	}
	if tc, ok := ContextFrom(ctx); ok && !tc.done() && snap.IsFromCurrent(tc) {
		return ctx
	}
	tc := m.getOrCreate(ctx, "", true)
	tc.Continued(snap)
	return bind(ctx, tc)
}

// =============================================================================
// 身份与关联数据
// =============================================================================

// TraceID 返回 ctx 的 trace id，未追踪或未采样时为空
func (m *Manager) TraceID(ctx context.Context) string {
	return xctx.TraceID(orBackground(ctx))
}

// PutCorrelation 写入关联数据，返回旧值
//
// ctx 上没有追踪上下文时返回 ErrNoContext；被上限拒绝时记录 correlation_rejected。
func (m *Manager) PutCorrelation(ctx context.Context, key, value string) (prev string, err error) {
	if m == nil {
		return "", ErrNoContext
	}
	ctx = orBackground(ctx)
	defer func() {
		if m.recovered(ctx, "PutCorrelation", recover()) {
			prev, err = "", nil
		}
	}()
	tc, ok := ContextFrom(ctx)
	if !ok {
		return "", ErrNoContext
	}
	prev, err = tc.Correlation().Put(key, value)
	if err != nil {
		m.eng.recorder.Record(ctx, xmetrics.EventCorrelationRejected, component)
	}
	return prev, err
}

// GetCorrelation 读取关联数据
func (m *Manager) GetCorrelation(ctx context.Context, key string) (string, bool) {
	if m == nil {
		return "", false
	}
	tc, ok := ContextFrom(orBackground(ctx))
	if !ok {
		return "", false
	}
	return tc.Correlation().Get(key)
}
