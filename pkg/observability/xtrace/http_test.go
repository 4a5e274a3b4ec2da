package xtrace_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xwalk/pkg/observability/xsampling"
	"github.com/omeyang/xwalk/pkg/observability/xtrace"
	"github.com/omeyang/xwalk/pkg/tracing/xagent"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
)

// =============================================================================
// Header 注入/提取测试
// =============================================================================

func TestInjectToHeader(t *testing.T) {
	t.Run("有效carrier写入全部头", func(t *testing.T) {
		h := make(http.Header)
		c := upstreamCarrier()
		_, err := c.Correlation().Put("tenant", "acme")
		require.NoError(t, err)

		xtrace.InjectToHeader(h, c)

		assert.Equal(t, c.Serialize(xagent.V3), h.Get(xagent.HeaderSW8))
		assert.NotEmpty(t, h.Get(xagent.HeaderCorrelation))
		assert.Equal(t, "0-", h.Get(xagent.HeaderExtension))
	})

	t.Run("无效carrier不写入", func(t *testing.T) {
		h := make(http.Header)
		xtrace.InjectToHeader(h, xagent.NewContextCarrier(xcorrelation.DefaultLimits()))
		assert.Empty(t, h)

		xtrace.InjectToHeader(h, nil)
		assert.Empty(t, h)
	})

	t.Run("无效carrier只写关联数据", func(t *testing.T) {
		h := make(http.Header)
		c := xagent.NewContextCarrier(xcorrelation.DefaultLimits())
		_, err := c.Correlation().Put("tenant", "acme")
		require.NoError(t, err)
		c.Extension().SetSkipAnalysis(true)

		xtrace.InjectToHeader(h, c)
		assert.Empty(t, h.Get(xagent.HeaderSW8))
		assert.Empty(t, h.Get(xagent.HeaderExtension))
		assert.Equal(t, "dGVuYW50:YWNtZQ==", h.Get(xagent.HeaderCorrelation))
	})

	t.Run("nil header", func(t *testing.T) {
		assert.NotPanics(t, func() { xtrace.InjectToHeader(nil, upstreamCarrier()) })
	})
}

func TestExtractFromHeader(t *testing.T) {
	m, _ := newManager(t)

	t.Run("往返", func(t *testing.T) {
		h := make(http.Header)
		up := upstreamCarrier()
		_, err := up.Correlation().Put("tenant", "acme")
		require.NoError(t, err)
		up.Extension().SetSkipAnalysis(true)
		xtrace.InjectToHeader(h, up)

		got := xtrace.ExtractFromHeader(m, h)
		require.True(t, got.IsValid(xagent.V3))
		assert.Equal(t, up.Fields(), got.Fields())
		v, ok := got.Correlation().Get("tenant")
		assert.True(t, ok)
		assert.Equal(t, "acme", v)
		assert.True(t, got.Extension().SkipAnalysis())
	})

	t.Run("头缺失返回空carrier", func(t *testing.T) {
		got := xtrace.ExtractFromHeader(m, nil)
		require.NotNil(t, got)
		assert.False(t, got.IsValid(xagent.V3))
	})

	t.Run("非法sw8", func(t *testing.T) {
		h := make(http.Header)
		h.Set(xagent.HeaderSW8, "1-not-enough")
		assert.False(t, xtrace.ExtractFromHeader(m, h).IsValid(xagent.V3))
	})
}

// =============================================================================
// 服务端中间件测试
// =============================================================================

func TestHTTPMiddleware(t *testing.T) {
	m, drain := newManager(t)

	var (
		traceID string
		active  bool
	)
	handler := xtrace.HTTPMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = m.TraceID(r.Context())
		_, active = m.ActiveSpan(r.Context())
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	req := httptest.NewRequest(http.MethodGet, "/orders/42?verbose=1", nil)
	xtrace.InjectToHeader(req.Header, upstreamCarrier())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "trace-up", traceID)
	assert.True(t, active)

	segs := drain()
	require.Len(t, segs, 1)
	seg := segs[0]
	assert.Equal(t, "trace-up", seg.TraceID)
	require.Len(t, seg.Spans, 1)

	span := seg.Spans[0]
	assert.Equal(t, "{GET}/orders/42", span.OperationName)
	assert.Equal(t, xspan.ComponentGoHTTPServer.ID, span.ComponentID)
	assert.Equal(t, xspan.LayerHTTP.String(), span.SpanLayer)
	assert.True(t, span.IsError)

	code, ok := findTag(span, "http.status_code")
	assert.True(t, ok)
	assert.Equal(t, "503", code)
	method, _ := findTag(span, "http.method")
	assert.Equal(t, http.MethodGet, method)
	url, _ := findTag(span, "url")
	assert.Equal(t, "/orders/42?verbose=1", url)

	require.Len(t, span.Refs, 1)
	assert.Equal(t, "seg-up", span.Refs[0].ParentTraceSegmentID)
	assert.Equal(t, int32(2), span.Refs[0].ParentSpanID)
	assert.Equal(t, "gateway", span.Refs[0].ParentService)
}

func TestHTTPMiddlewareOptions(t *testing.T) {
	m, drain := newManager(t)

	handler := xtrace.HTTPMiddleware(m, xtrace.WithOperationName(func(r *http.Request) string {
		return "orders.get"
	}))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders", nil))

	segs := drain()
	require.Len(t, segs, 1)
	span := segs[0].Spans[0]
	assert.Equal(t, "orders.get", span.OperationName)
	assert.False(t, span.IsError)
	code, _ := findTag(span, "http.status_code")
	assert.Equal(t, "200", code)
	assert.Empty(t, span.Refs)
}

func TestHTTPMiddlewarePanic(t *testing.T) {
	m, drain := newManager(t)

	handler := xtrace.HTTPMiddleware(m)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	assert.PanicsWithValue(t, "boom", func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/pay", nil))
	})

	segs := drain()
	require.Len(t, segs, 1)
	assert.True(t, segs[0].Spans[0].IsError)
}

func TestHTTPMiddlewareNilManager(t *testing.T) {
	called := false
	handler := xtrace.HTTPMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

// =============================================================================
// 客户端 Transport 测试
// =============================================================================

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransport(t *testing.T) {
	m, drain := newManager(t)

	var sent http.Header
	base := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		sent = r.Header.Clone()
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Body:       io.NopCloser(strings.NewReader("")),
			Request:    r,
		}, nil
	})
	client := &http.Client{Transport: xtrace.NewTransport(m, base)}

	ctx, entry := m.CreateEntrySpan(context.Background(), "/orders", nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://stock:8080/items?id=1", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, req.Header.Get(xagent.HeaderSW8), "原请求不应被修改")

	require.NotEmpty(t, sent.Get(xagent.HeaderSW8))
	down := xtrace.ExtractFromHeader(m, sent)
	require.True(t, down.IsValid(xagent.V3))
	assert.Equal(t, m.TraceID(ctx), down.TraceID())
	assert.Equal(t, int32(1), down.SpanID())
	assert.Equal(t, "stock:8080", down.Fields().AddressUsedAtClient)
	assert.Equal(t, "/orders", down.Fields().ParentEndpoint)

	m.StopSpan(ctx, entry)

	segs := drain()
	require.Len(t, segs, 1)
	require.Len(t, segs[0].Spans, 2)
	exit := segs[0].Spans[0]
	assert.Equal(t, "Exit", exit.SpanType)
	assert.Equal(t, "stock:8080", exit.Peer)
	assert.Equal(t, xspan.ComponentGoHTTPClient.ID, exit.ComponentID)
	assert.True(t, exit.IsError)
	code, _ := findTag(exit, "http.status_code")
	assert.Equal(t, "404", code)
}

func TestTransportError(t *testing.T) {
	m, drain := newManager(t)

	errDial := errors.New("dial tcp: connection refused")
	tr := xtrace.NewTransport(m, roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errDial
	}))

	req, err := http.NewRequest(http.MethodGet, "http://stock:8080/items", nil)
	require.NoError(t, err)
	resp, err := tr.RoundTrip(req)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, errDial)

	segs := drain()
	require.Len(t, segs, 1)
	exit := segs[0].Spans[0]
	assert.True(t, exit.IsError)
	require.NotEmpty(t, exit.Logs)
}

func TestTransportUnsampledCorrelation(t *testing.T) {
	m, drain := newManager(t, xagent.WithSampler(xsampling.Never()))

	var sent http.Header
	client := &http.Client{Transport: xtrace.NewTransport(m, roundTripFunc(func(r *http.Request) (*http.Response, error) {
		sent = r.Header.Clone()
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("")), Request: r}, nil
	}))}

	ctx, entry := m.CreateEntrySpan(context.Background(), "/health", nil)
	_, err := m.PutCorrelation(ctx, "tenant", "acme")
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://stock:8080/items", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	m.StopSpan(ctx, entry)

	assert.Empty(t, sent.Get(xagent.HeaderSW8))
	assert.Empty(t, sent.Get(xagent.HeaderExtension))
	assert.Equal(t, "dGVuYW50:YWNtZQ==", sent.Get(xagent.HeaderCorrelation))

	// 下游从同一组头取回关联数据
	downCtx, downEntry := m.CreateEntrySpan(context.Background(), "/items", xtrace.ExtractFromHeader(m, sent))
	v, ok := m.GetCorrelation(downCtx, "tenant")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)
	m.StopSpan(downCtx, downEntry)

	assert.Empty(t, drain())
}
