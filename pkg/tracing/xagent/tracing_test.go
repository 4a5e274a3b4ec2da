package xagent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
)

func TestTracingContext_StackDiscipline(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())

	entry := tc.CreateEntrySpan("/orders")
	local := tc.CreateLocalSpan("validate")
	exit := tc.CreateExitSpan("GET /stock", "stock:8080")

	assert.Equal(t, int32(0), entry.SpanID())
	assert.Equal(t, int32(-1), entry.ParentSpanID())
	assert.Equal(t, int32(1), local.SpanID())
	assert.Equal(t, int32(0), local.ParentSpanID())
	assert.Equal(t, int32(2), exit.SpanID())
	assert.Equal(t, int32(1), exit.ParentSpanID())
	assert.Equal(t, int32(2), tc.SpanID())

	assert.False(t, tc.StopSpan(exit))
	assert.False(t, tc.StopSpan(local))
	assert.Empty(t, h.segments())
	assert.True(t, tc.StopSpan(entry))

	segs := h.segments()
	require.Len(t, segs, 1)
	spans := segs[0].Spans()
	require.Len(t, spans, 3)
	assert.Equal(t, "GET /stock", spans[0].OperationName())
	assert.Equal(t, "/orders", spans[2].OperationName())
	assert.Equal(t, int32(-1), tc.SpanID())
	assert.True(t, tc.done())
	assert.Equal(t, 1, h.rec.count(xmetrics.EventSegmentFinished))
}

func TestTracingContext_StopOutOfOrder(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())

	entry := tc.CreateEntrySpan("/orders")
	local := tc.CreateLocalSpan("validate")

	assert.NotPanics(t, func() {
		assert.False(t, tc.StopSpan(entry))
	})
	assert.Contains(t, h.logs.String(), ErrNotActiveSpan.Error())
	assert.Equal(t, 1, h.rec.count(xmetrics.EventStackViolation))

	active, ok := tc.ActiveSpan()
	require.True(t, ok)
	assert.Same(t, local, active)
	assert.Empty(t, h.segments())

	assert.False(t, tc.StopSpan(local))
	assert.True(t, tc.StopSpan(entry))
	assert.Len(t, h.segments(), 1)

	assert.False(t, tc.StopSpan(entry))
	assert.Contains(t, h.logs.String(), ErrEmptyStack.Error())
	assert.Len(t, h.segments(), 1)
}

func TestTracingContext_NestedEntryExtends(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())

	outer := tc.CreateEntrySpan("tomcat")
	outer.SetComponent(xspan.ComponentTomcat)
	inner := tc.CreateEntrySpan("/orders")
	assert.Same(t, outer, inner)
	assert.Equal(t, "/orders", inner.OperationName())

	assert.False(t, tc.StopSpan(inner))
	_, ok := tc.ActiveSpan()
	assert.True(t, ok)
	assert.True(t, tc.StopSpan(outer))
	require.Len(t, h.segments(), 1)
	assert.Len(t, h.segments()[0].Spans(), 1)
}

func TestTracingContext_NestedExitKeepsOuter(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())

	entry := tc.CreateEntrySpan("/orders")
	outer := tc.CreateExitSpan("redis GET", "redis:6379")
	inner := tc.CreateExitSpan("socket write", "10.0.0.1:6379")
	assert.Same(t, outer, inner)
	assert.Equal(t, "redis GET", inner.OperationName())
	assert.Equal(t, "redis:6379", inner.(*xspan.ExitSpan).Peer())

	assert.False(t, tc.StopSpan(inner))
	assert.False(t, tc.StopSpan(outer))
	assert.True(t, tc.StopSpan(entry))
}

func TestTracingContext_LocalAlwaysPushes(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())

	a := tc.CreateLocalSpan("a")
	b := tc.CreateLocalSpan("b")
	assert.NotSame(t, a, b)
	assert.Equal(t, a.SpanID(), b.ParentSpanID())
	assert.False(t, tc.StopSpan(b))
	assert.True(t, tc.StopSpan(a))
}

func TestTracingContext_SpanLimit(t *testing.T) {
	h := newHarness(t)
	s := testSettings()
	s.SpanLimitPerSegment = 2
	tc := newTracingContext(h.eng, s)

	a := tc.CreateEntrySpan("/a")
	b := tc.CreateLocalSpan("b")
	c := tc.CreateLocalSpan("c")
	d := tc.CreateExitSpan("d", "peer")

	assert.IsType(t, &xspan.NoopSpan{}, c)
	assert.IsType(t, &xspan.NoopSpan{}, d)
	assert.True(t, d.IsExit())
	assert.True(t, tc.Segment().IsSizeLimited())
	assert.Equal(t, 1, h.rec.count(xmetrics.EventSpanLimited))
	assert.Equal(t, int32(1), tc.SpanID())

	for _, span := range []xspan.Span{d, c, b} {
		assert.False(t, tc.StopSpan(span))
	}
	assert.True(t, tc.StopSpan(a))
	require.Len(t, h.segments(), 1)
	assert.Len(t, h.segments()[0].Spans(), 2)
}

func TestTracingContext_AsyncFinish(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())

	entry := tc.CreateEntrySpan("/async")
	entry.PrepareForAsync()
	assert.True(t, tc.StopSpan(entry))
	assert.Empty(t, h.segments(), "segment must wait for async finish")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		entry.AsyncFinish()
	}()
	wg.Wait()

	require.Len(t, h.segments(), 1)
	assert.False(t, entry.(*xspan.EntrySpan).EndTime().IsZero())

	entry.AsyncFinish()
	assert.Len(t, h.segments(), 1)
	assert.Contains(t, h.logs.String(), xspan.ErrAsyncFinished.Error())
}

func TestTracingContext_AsyncStopUnderflow(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())
	span := tc.CreateLocalSpan("x")
	tc.AsyncStop(span)
	assert.Contains(t, h.logs.String(), ErrAsyncUnderflow.Error())
	assert.True(t, tc.StopSpan(span))
	assert.Len(t, h.segments(), 1)
}

func TestTracingContext_InjectRequiresExit(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())
	tc.CreateEntrySpan("/orders")

	c := NewContextCarrier(xcorrelation.DefaultLimits())
	tc.Inject(c)
	assert.False(t, c.IsValid(V3))
	assert.Contains(t, h.logs.String(), ErrInjectWithoutExit.Error())
}

func TestTracingContext_InjectExtract(t *testing.T) {
	h := newHarness(t)
	up := newTracingContext(h.eng, testSettings())
	up.CreateEntrySpan("/orders")
	up.CreateExitSpan("GET /stock", "stock:8080")
	_, err := up.Correlation().Put("user", "alice")
	require.NoError(t, err)

	c := NewContextCarrier(xcorrelation.DefaultLimits())
	up.Inject(c)
	require.True(t, c.IsValid(V3))
	assert.Equal(t, CarrierFields{
		TraceID:               up.TraceID(),
		SegmentID:             up.SegmentID(),
		SpanID:                1,
		ParentService:         "order",
		ParentServiceInstance: "order-1",
		ParentEndpoint:        "/orders",
		AddressUsedAtClient:   "stock:8080",
	}, c.Fields())

	// 经过传播头往返
	headers := map[string]string{}
	c.ForEach(func(it CarrierItem) { headers[it.Key()] = it.Value() })
	received := NewContextCarrier(xcorrelation.DefaultLimits())
	received.ForEach(func(it CarrierItem) { it.SetValue(headers[it.Key()]) })
	assert.Equal(t, c.Fields(), received.Fields())

	down := newTracingContext(h.eng, testSettings())
	entry := down.CreateEntrySpan("/stock")
	down.Extract(received)

	assert.Equal(t, up.TraceID(), down.TraceID())
	refs := down.Segment().Refs()
	require.Len(t, refs, 1)
	assert.Equal(t, xspan.RefCrossProcess, refs[0].Type())
	assert.Equal(t, up.SegmentID(), refs[0].ParentSegmentID())
	assert.Equal(t, int32(1), refs[0].ParentSpanID())
	assert.Equal(t, "stock:8080", refs[0].AddressUsedAtClient())
	assert.Len(t, entry.(*xspan.EntrySpan).Refs(), 1)

	v, ok := down.Correlation().Get("user")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	// 同一上游 Span 的重复提取是同一条边
	down.Extract(received)
	assert.Len(t, down.Segment().Refs(), 1)
}

func TestTracingContext_ExtractInvalidCarrier(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())
	tc.CreateEntrySpan("/orders")
	traceID := tc.TraceID()

	c := NewContextCarrier(xcorrelation.DefaultLimits())
	c.Deserialize("1-garbage", V3)
	tc.Extract(c)
	tc.Extract(nil)

	assert.Equal(t, traceID, tc.TraceID())
	assert.Empty(t, tc.Segment().Refs())
	assert.Equal(t, 2, h.rec.count(xmetrics.EventCarrierInvalid))
}

func TestTracingContext_ExtractCorrelationOnly(t *testing.T) {
	h := newHarness(t)
	s := testSettings()
	s.Correlation.AutoTagKeys = []string{"tenant"}
	tc := newTracingContext(h.eng, s)
	entry := tc.CreateEntrySpan("/orders")
	traceID := tc.TraceID()

	c := NewContextCarrier(xcorrelation.DefaultLimits())
	_, err := c.Correlation().Put("tenant", "acme")
	require.NoError(t, err)
	tc.Extract(c)

	assert.Equal(t, traceID, tc.TraceID())
	assert.Empty(t, tc.Segment().Refs())
	assert.Equal(t, 1, h.rec.count(xmetrics.EventCarrierInvalid))
	v, ok := tc.Correlation().Get("tenant")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)
	tag, ok := entry.(*xspan.EntrySpan).TagValue(h.eng.registry.OfKey("tenant"))
	assert.True(t, ok)
	assert.Equal(t, "acme", tag)
}

func TestTracingContext_ContinuedUnsampledSnapshot(t *testing.T) {
	h := newHarness(t)
	ic := newIgnoredContext(h.eng, testSettings())
	ic.CreateEntrySpan("/health")
	_, err := ic.Correlation().Put("user", "bob")
	require.NoError(t, err)

	tc := newTracingContext(h.eng, testSettings())
	tc.CreateLocalSpan("worker")
	traceID := tc.TraceID()
	tc.Continued(ic.Capture())

	assert.Equal(t, traceID, tc.TraceID())
	assert.Empty(t, tc.Segment().Refs())
	v, ok := tc.Correlation().Get("user")
	assert.True(t, ok)
	assert.Equal(t, "bob", v)
}

func TestTracingContext_ExtractAppliesExtensionAndAutoTags(t *testing.T) {
	h := newHarness(t)
	s := testSettings()
	s.Correlation.AutoTagKeys = []string{"region"}
	tc := newTracingContext(h.eng, s)
	entry := tc.CreateEntrySpan("/orders")

	c := NewContextCarrier(xcorrelation.DefaultLimits())
	c.SetFields(CarrierFields{
		TraceID: "t1", SegmentID: "s1", SpanID: 2,
		ParentService: "gw", ParentServiceInstance: "gw-1",
		ParentEndpoint: "/", AddressUsedAtClient: "order:80",
	})
	_, err := c.Correlation().Put("region", "cn-north")
	require.NoError(t, err)
	c.Extension().Deserialize("1-1700000009000")
	tc.Extract(c)

	es := entry.(*xspan.EntrySpan)
	assert.True(t, es.IsSkipAnalysis())
	latency, ok := es.TagValue(h.eng.registry.OfKey("transmission.latency"))
	assert.True(t, ok)
	assert.Equal(t, "1000", latency)
	region, ok := es.TagValue(h.eng.registry.OfKey("region"))
	assert.True(t, ok)
	assert.Equal(t, "cn-north", region)
}

func TestTracingContext_ExtractBoundedByReceiverCap(t *testing.T) {
	h := newHarness(t)
	wide := xcorrelation.Limits{MaxElements: 5, MaxValueLength: 16}
	c := NewContextCarrier(wide)
	c.SetFields(CarrierFields{
		TraceID: "t1", SegmentID: "s1", SpanID: 0,
		ParentService: "gw", ParentServiceInstance: "gw-1",
		ParentEndpoint: "/", AddressUsedAtClient: "order:80",
	})
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		_, err := c.Correlation().Put(k, "v")
		require.NoError(t, err)
	}

	tc := newTracingContext(h.eng, testSettings())
	tc.CreateEntrySpan("/orders")
	tc.Extract(c)
	assert.Equal(t, xcorrelation.DefaultMaxElements, tc.Correlation().Len())
}

func TestTracingContext_CorrelationAutoTag(t *testing.T) {
	h := newHarness(t)
	s := testSettings()
	s.Correlation.AutoTagKeys = []string{"tenant"}
	tc := newTracingContext(h.eng, s)
	entry := tc.CreateEntrySpan("/orders")

	_, err := tc.Correlation().Put("tenant", "acme")
	require.NoError(t, err)
	_, err = tc.Correlation().Put("user", "alice")
	require.NoError(t, err)

	es := entry.(*xspan.EntrySpan)
	v, ok := es.TagValue(h.eng.registry.OfKey("tenant"))
	assert.True(t, ok)
	assert.Equal(t, "acme", v)
	_, ok = es.TagValue(h.eng.registry.OfKey("user"))
	assert.False(t, ok)
}

func TestTracingContext_CaptureContinued(t *testing.T) {
	h := newHarness(t)
	src := newTracingContext(h.eng, testSettings())
	src.CreateEntrySpan("/orders")
	src.CreateLocalSpan("dispatch")
	_, err := src.Correlation().Put("k", "v1")
	require.NoError(t, err)

	snap := src.Capture()
	require.True(t, snap.IsValid())
	assert.Equal(t, int32(1), snap.SpanID())
	assert.Equal(t, "/orders", snap.ParentEndpoint())
	assert.True(t, snap.IsFromCurrent(src))

	// 捕获后修改源上下文不影响快照
	_, err = src.Correlation().Put("k", "v2")
	require.NoError(t, err)
	v, _ := snap.Correlation().Get("k")
	assert.Equal(t, "v1", v)

	worker := newTracingContext(h.eng, testSettings())
	local := worker.CreateLocalSpan("worker")
	assert.False(t, snap.IsFromCurrent(worker))
	worker.Continued(snap)

	assert.Equal(t, src.TraceID(), worker.TraceID())
	refs := worker.Segment().Refs()
	require.Len(t, refs, 1)
	assert.Equal(t, xspan.RefCrossThread, refs[0].Type())
	assert.Equal(t, src.SegmentID(), refs[0].ParentSegmentID())
	assert.Equal(t, int32(1), refs[0].ParentSpanID())
	assert.Empty(t, refs[0].AddressUsedAtClient())
	assert.Len(t, local.(*xspan.LocalSpan).Refs(), 1)
	got, _ := worker.Correlation().Get("k")
	assert.Equal(t, "v1", got)
}

func TestTracingContext_ContinuedSelfIsNoop(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())
	tc.CreateLocalSpan("x")
	tc.Continued(tc.Capture())
	tc.Continued(nil)
	assert.Empty(t, tc.Segment().Refs())
}

func TestTracingContext_Profiling(t *testing.T) {
	h := newHarness(t)
	h.eng.matcher = func(endpoint string) bool { return endpoint == "/slow" }

	tc := newTracingContext(h.eng, testSettings())
	entry := tc.CreateEntrySpan("/slow")
	assert.True(t, tc.IsProfiling())
	assert.True(t, entry.IsProfiling())

	snap := tc.Capture()
	assert.Equal(t, ProfileProfiling, snap.ProfileStatus())

	worker := newTracingContext(h.eng, testSettings())
	worker.CreateLocalSpan("worker")
	assert.False(t, worker.IsProfiling())
	worker.Continued(snap)
	assert.True(t, worker.IsProfiling())

	other := newTracingContext(h.eng, testSettings())
	other.CreateEntrySpan("/fast")
	assert.False(t, other.IsProfiling())
	assert.Equal(t, "none", other.ProfileStatus().String())
}

func TestTracingContext_PrimaryEndpoint(t *testing.T) {
	h := newHarness(t)
	tc := newTracingContext(h.eng, testSettings())
	assert.Empty(t, tc.PrimaryEndpoint())

	entry := tc.CreateEntrySpan("/a")
	tc.CreateLocalSpan("b")
	assert.Equal(t, "/a", tc.PrimaryEndpoint())
	entry.SetOperationName("/renamed")
	assert.Equal(t, "/renamed", tc.PrimaryEndpoint())
}

func TestTracingContext_ConcurrentCorrelation(t *testing.T) {
	h := newHarness(t)
	s := testSettings()
	s.Correlation.AutoTagKeys = []string{"k0"}
	tc := newTracingContext(h.eng, s)
	entry := tc.CreateEntrySpan("/concurrent")

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = tc.Correlation().Put("k"+string(rune('0'+i%8)), "v")
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, tc.Correlation().Len(), xcorrelation.DefaultMaxElements)
	assert.True(t, tc.StopSpan(entry))
}

func TestIgnoredContext(t *testing.T) {
	h := newHarness(t)
	ic := newIgnoredContext(h.eng, testSettings())

	entry := ic.CreateEntrySpan("/ignored")
	exit := ic.CreateExitSpan("call", "peer")
	assert.IsType(t, &xspan.NoopSpan{}, entry)
	assert.Empty(t, ic.TraceID())
	assert.Equal(t, int32(-1), ic.SpanID())
	assert.Equal(t, "/ignored", ic.PrimaryEndpoint())
	assert.False(t, ic.IsProfiling())

	_, err := ic.Correlation().Put("user", "bob")
	require.NoError(t, err)
	c := NewContextCarrier(xcorrelation.DefaultLimits())
	ic.Inject(c)
	assert.False(t, c.IsValid(V3))
	assert.Empty(t, c.Serialize(V3))
	v, _ := c.Correlation().Get("user")
	assert.Equal(t, "bob", v)

	snap := ic.Capture()
	assert.False(t, snap.IsValid())

	assert.False(t, ic.StopSpan(entry))
	assert.False(t, ic.done())
	assert.False(t, ic.StopSpan(exit))
	assert.True(t, ic.StopSpan(entry))
	assert.True(t, ic.done())
	assert.Empty(t, h.segments())
}

func TestIgnoredContext_PropagatesCorrelation(t *testing.T) {
	h := newHarness(t)
	ic := newIgnoredContext(h.eng, testSettings())
	entry := ic.CreateEntrySpan("/ignored")

	c := NewContextCarrier(xcorrelation.DefaultLimits())
	_, err := c.Correlation().Put("tenant", "acme")
	require.NoError(t, err)
	ic.Extract(c)
	ic.Extract(nil)
	assert.Equal(t, 2, h.rec.count(xmetrics.EventCarrierInvalid))
	v, ok := ic.Correlation().Get("tenant")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)

	worker := newIgnoredContext(h.eng, testSettings())
	worker.Continued(ic.Capture())
	v, ok = worker.Correlation().Get("tenant")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)

	assert.True(t, ic.StopSpan(entry))
	assert.Empty(t, h.segments())
}
