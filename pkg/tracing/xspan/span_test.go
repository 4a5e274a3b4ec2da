package xspan

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

type fakeOwner struct {
	mu         sync.Mutex
	awaiting   int
	stopped    []Span
	violations []error
	profiling  bool
}

func (o *fakeOwner) AwaitFinishAsync() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.awaiting++
}

func (o *fakeOwner) AsyncStop(span Span) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.awaiting--
	o.stopped = append(o.stopped, span)
}

func (o *fakeOwner) IsProfiling() bool { return o.profiling }

func (o *fakeOwner) ReportViolation(_ Span, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.violations = append(o.violations, err)
}

func fixedClock(ts ...time.Time) func() time.Time {
	var i int
	return func() time.Time {
		t := ts[min(i, len(ts)-1)]
		i++
		return t
	}
}

func TestVariants_KindFlags(t *testing.T) {
	owner := &fakeOwner{}
	entry := NewEntrySpan(0, -1, "/api", owner)
	local := NewLocalSpan(1, 0, "compute", owner)
	exit := NewExitSpan(2, 1, "GET /down", "10.0.0.1:80", owner)

	assert.True(t, entry.IsEntry())
	assert.False(t, entry.IsExit())
	assert.False(t, local.IsEntry())
	assert.False(t, local.IsExit())
	assert.False(t, exit.IsEntry())
	assert.True(t, exit.IsExit())
	assert.Equal(t, "10.0.0.1:80", exit.Peer())
	assert.Equal(t, int32(-1), entry.ParentSpanID())
	assert.Equal(t, int32(1), exit.ParentSpanID())
}

func TestLocalSpan_SetPeerIsNoop(t *testing.T) {
	s := NewLocalSpan(0, -1, "op", nil)
	s.SetPeer("somewhere")
	assert.Empty(t, s.Peer())
}

func TestTag_InternedPathsIndistinguishable(t *testing.T) {
	reg := xtag.NewRegistry()
	a := NewLocalSpan(0, -1, "a", nil, WithRegistry(reg))
	b := NewLocalSpan(0, -1, "b", nil, WithRegistry(reg))

	a.Tag(xtag.URL, "http://x")
	a.Tag(reg.OfKey("biz.key"), "v")
	b.TagString("url", "http://x")
	b.TagString("biz.key", "v")

	assert.Equal(t, a.Transform().Tags, b.Transform().Tags)
	got, ok := b.TagValue(xtag.URL)
	require.True(t, ok)
	assert.Equal(t, "http://x", got)
}

func TestTag_LastWriteWinsKeepsOrder(t *testing.T) {
	s := NewLocalSpan(0, -1, "op", nil)
	s.Tag(xtag.DBType, "mysql")
	s.Tag(xtag.DBStatement, "select 1")
	s.Tag(xtag.DBType, "pg")
	s.Tag(xtag.Tag{}, "ignored")

	assert.Equal(t, []KeyValue{
		{Key: "db.type", Value: "pg"},
		{Key: "db.statement", Value: "select 1"},
	}, s.Transform().Tags)
}

func TestLog_MarksError(t *testing.T) {
	s := NewLocalSpan(0, -1, "op", nil)
	s.Log(nil)
	assert.False(t, s.IsErrorOccurred())

	s.Log(errors.New("boom"))
	assert.True(t, s.IsErrorOccurred())
	obj := s.Transform()
	require.Len(t, obj.Logs, 1)
	assert.Contains(t, obj.Logs[0].Data, KeyValue{Key: "message", Value: "boom"})
	assert.Contains(t, obj.Logs[0].Data, KeyValue{Key: "event", Value: "error"})
}

func TestLogEvent_SortedFields(t *testing.T) {
	s := NewLocalSpan(0, -1, "op", nil)
	ts := time.UnixMilli(1700000000000)
	s.LogEvent(ts, map[string]any{"b": 2, "a": "x"})
	s.LogEvent(ts, nil)

	obj := s.Transform()
	require.Len(t, obj.Logs, 1)
	assert.Equal(t, ts.UnixMilli(), obj.Logs[0].Time)
	assert.Equal(t, []KeyValue{{Key: "a", Value: "x"}, {Key: "b", Value: "2"}}, obj.Logs[0].Data)
}

func TestEntrySpan_ReenterInnermostWins(t *testing.T) {
	seg := NewTraceSegment("seg", "trace", "svc", "inst")
	s := NewEntrySpan(0, -1, "outer", nil)
	s.Tag(xtag.URL, "/outer")
	s.SetComponent(ComponentTomcat)

	s.Reenter("inner")
	assert.Equal(t, "inner", s.OperationName())
	_, ok := s.TagValue(xtag.URL)
	assert.False(t, ok, "reenter clears outer records")
	s.Tag(xtag.URL, "/inner")

	assert.False(t, s.Finish(seg), "inner stop only unwinds depth")
	s.Tag(xtag.HTTPMethod, "GET")
	_, ok = s.TagValue(xtag.HTTPMethod)
	assert.False(t, ok, "outer writes after inner finished are ignored")

	assert.True(t, s.Finish(seg))
	require.Len(t, seg.Spans(), 1)
	v, _ := s.TagValue(xtag.URL)
	assert.Equal(t, "/inner", v)
}

func TestExitSpan_ReenterOutermostWins(t *testing.T) {
	s := NewExitSpan(1, 0, "outer", "peer:1", nil)
	s.Reenter("inner")
	s.SetPeer("other:2")
	s.SetOperationName("renamed")
	assert.Equal(t, "outer", s.OperationName())
	assert.Equal(t, "peer:1", s.Peer())

	assert.False(t, s.Finish(nil))
	s.SetOperationName("renamed")
	assert.Equal(t, "renamed", s.OperationName())
	assert.True(t, s.Finish(nil))
}

func TestFinish_SetsEndTime(t *testing.T) {
	start := time.UnixMilli(1000)
	end := time.UnixMilli(2500)
	s := NewLocalSpan(3, 2, "op", nil, WithClock(fixedClock(start, end)))
	assert.True(t, s.Finish(nil))

	obj := s.Transform()
	assert.Equal(t, int64(1000), obj.StartTime)
	assert.Equal(t, int64(2500), obj.EndTime)
	assert.Equal(t, "Local", obj.SpanType)
	assert.Equal(t, int32(3), obj.SpanID)
	assert.Equal(t, int32(2), obj.ParentSpanID)
}

func TestAsync_Lifecycle(t *testing.T) {
	owner := &fakeOwner{}
	start := time.UnixMilli(1000)
	s := NewExitSpan(0, -1, "op", "peer", owner,
		WithClock(fixedClock(start, time.UnixMilli(9000))))

	s.PrepareForAsync()
	assert.Equal(t, 1, owner.awaiting)

	assert.True(t, s.Finish(nil))
	assert.True(t, s.EndTime().IsZero(), "async span end time is written by AsyncFinish")

	s.AsyncFinish()
	assert.Equal(t, 0, owner.awaiting)
	require.Len(t, owner.stopped, 1)
	assert.Same(t, Span(s), owner.stopped[0])
	assert.Equal(t, int64(9000), s.EndTime().UnixMilli())
	assert.Empty(t, owner.violations)
}

func TestAsync_Violations(t *testing.T) {
	owner := &fakeOwner{}
	s := NewLocalSpan(0, -1, "op", owner)

	s.AsyncFinish()
	s.PrepareForAsync()
	s.PrepareForAsync()
	s.AsyncFinish()
	s.AsyncFinish()

	require.Len(t, owner.violations, 3)
	assert.ErrorIs(t, owner.violations[0], ErrAsyncNotPrepared)
	assert.ErrorIs(t, owner.violations[1], ErrAsyncPrepared)
	assert.ErrorIs(t, owner.violations[2], ErrAsyncFinished)
	assert.Equal(t, 0, owner.awaiting)
}

func TestIsProfilingFollowsOwner(t *testing.T) {
	owner := &fakeOwner{profiling: true}
	assert.True(t, NewLocalSpan(0, -1, "op", owner).IsProfiling())
	assert.False(t, NewLocalSpan(0, -1, "op", nil).IsProfiling())
}

func TestSkipAnalysis(t *testing.T) {
	s := NewEntrySpan(0, -1, "op", nil)
	s.SkipAnalysis()
	assert.True(t, s.IsSkipAnalysis())
	assert.True(t, s.Transform().SkipAnalysis)
}

func TestNoopSpan(t *testing.T) {
	var s Span = NewNoopSpan(KindExit, "noop")
	s.Tag(xtag.URL, "x")
	s.PrepareForAsync()
	s.AsyncFinish()
	assert.True(t, s.IsExit())
	assert.Equal(t, "noop", s.OperationName())
	_, ok := s.(TracingSpan)
	assert.False(t, ok)
}
