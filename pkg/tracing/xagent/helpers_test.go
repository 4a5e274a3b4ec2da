package xagent

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// seqIDs 可预测的 id 生成器
type seqIDs struct {
	n atomic.Int64
}

func (s *seqIDs) Next() string { return fmt.Sprintf("id-%d", s.n.Add(1)) }

type eventRecorder struct {
	mu     sync.Mutex
	events map[xmetrics.Event]int
}

func (r *eventRecorder) Record(_ context.Context, e xmetrics.Event, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = make(map[xmetrics.Event]int)
	}
	r.events[e]++
}

func (r *eventRecorder) ObserveSegment(context.Context, int) {}

func (r *eventRecorder) count(e xmetrics.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[e]
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(t *testing.T) (xlog.Logger, *lockedBuffer) {
	t.Helper()
	buf := &lockedBuffer{}
	logger, cleanup, err := xlog.New().SetOutput(buf).SetLevel(xlog.LevelDebug).Build()
	require.NoError(t, err)
	t.Cleanup(func() { _ = cleanup() })
	return logger, buf
}

var testNow = time.UnixMilli(1_700_000_010_000)

// harness 同步收集定稿 segment 的测试引擎
type harness struct {
	eng  *engine
	logs *lockedBuffer
	rec  *eventRecorder

	mu       sync.Mutex
	finished []*xspan.TraceSegment
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, logs := newTestLogger(t)
	h := &harness{logs: logs, rec: &eventRecorder{}}
	h.eng = &engine{
		ids:      &seqIDs{},
		registry: xtag.NewRegistry(),
		logger:   logger,
		recorder: h.rec,
		now:      func() time.Time { return testNow },
	}
	h.eng.finished = func(seg *xspan.TraceSegment) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.finished = append(h.finished, seg)
	}
	return h
}

func (h *harness) segments() []*xspan.TraceSegment {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*xspan.TraceSegment(nil), h.finished...)
}

func testSettings() Settings {
	return Settings{
		ServiceName:         "order",
		InstanceName:        "order-1",
		SpanLimitPerSegment: DefaultSpanLimitPerSegment,
		Correlation:         xcorrelation.DefaultLimits(),
	}
}
