package xtrace_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xwalk/pkg/observability/xtrace"
	"github.com/omeyang/xwalk/pkg/tracing/xagent"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
)

// =============================================================================
// Metadata 注入/提取测试
// =============================================================================

func TestMetadataRoundTrip(t *testing.T) {
	m, _ := newManager(t)

	md := metadata.MD{}
	up := upstreamCarrier()
	xtrace.InjectToMetadata(md, up)
	assert.Len(t, md.Get(xagent.HeaderSW8), 1)

	got := xtrace.ExtractFromMetadata(m, md)
	require.True(t, got.IsValid(xagent.V3))
	assert.Equal(t, up.Fields(), got.Fields())

	assert.NotPanics(t, func() { xtrace.InjectToMetadata(nil, up) })
	assert.False(t, xtrace.ExtractFromMetadata(m, nil).IsValid(xagent.V3))
}

func TestInjectToOutgoingContext(t *testing.T) {
	t.Run("保留已有metadata", func(t *testing.T) {
		orig := metadata.Pairs("x-tenant", "acme")
		ctx := metadata.NewOutgoingContext(context.Background(), orig)

		ctx = xtrace.InjectToOutgoingContext(ctx, upstreamCarrier())
		md, ok := metadata.FromOutgoingContext(ctx)
		require.True(t, ok)
		assert.Equal(t, []string{"acme"}, md.Get("x-tenant"))
		assert.Len(t, md.Get(xagent.HeaderSW8), 1)
		assert.Empty(t, orig.Get(xagent.HeaderSW8), "原 metadata 不应被修改")
	})

	t.Run("无效carrier原样返回", func(t *testing.T) {
		ctx := context.Background()
		assert.Equal(t, ctx, xtrace.InjectToOutgoingContext(ctx, nil))
		assert.Equal(t, ctx, xtrace.InjectToOutgoingContext(ctx, xagent.NewContextCarrier(xcorrelation.DefaultLimits())))
	})

	t.Run("无效carrier只带关联数据", func(t *testing.T) {
		c := xagent.NewContextCarrier(xcorrelation.DefaultLimits())
		_, err := c.Correlation().Put("tenant", "acme")
		require.NoError(t, err)

		md, ok := metadata.FromOutgoingContext(xtrace.InjectToOutgoingContext(context.Background(), c))
		require.True(t, ok)
		assert.Empty(t, md.Get(xagent.HeaderSW8))
		assert.Empty(t, md.Get(xagent.HeaderExtension))
		assert.Equal(t, []string{"dGVuYW50:YWNtZQ=="}, md.Get(xagent.HeaderCorrelation))
	})
}

// =============================================================================
// 服务端拦截器测试
// =============================================================================

func TestGRPCUnaryServerInterceptor(t *testing.T) {
	m, drain := newManager(t)

	md := metadata.MD{}
	xtrace.InjectToMetadata(md, upstreamCarrier())
	ctx := metadata.NewIncomingContext(context.Background(), md)

	var traceID string
	handler := func(ctx context.Context, _ any) (any, error) {
		traceID = m.TraceID(ctx)
		return nil, status.Error(codes.NotFound, "order not found")
	}

	interceptor := xtrace.GRPCUnaryServerInterceptor(m)
	resp, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/order.v1.Order/Get"}, handler)
	assert.Nil(t, resp)
	assert.Equal(t, codes.NotFound, status.Code(err))
	assert.Equal(t, "trace-up", traceID)

	segs := drain()
	require.Len(t, segs, 1)
	span := segs[0].Spans[0]
	assert.Equal(t, "/order.v1.Order/Get", span.OperationName)
	assert.Equal(t, xspan.ComponentGRPC.ID, span.ComponentID)
	assert.Equal(t, xspan.LayerRPCFramework.String(), span.SpanLayer)
	assert.True(t, span.IsError)
	code, ok := findTag(span, "rpc.status_code")
	assert.True(t, ok)
	assert.Equal(t, codes.NotFound.String(), code)
	require.Len(t, span.Refs, 1)
	assert.Equal(t, "seg-up", span.Refs[0].ParentTraceSegmentID)
}

func TestGRPCUnaryServerInterceptorNilInfo(t *testing.T) {
	m, drain := newManager(t)

	resp, err := xtrace.GRPCUnaryServerInterceptor(m)(context.Background(), "req", nil,
		func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)

	segs := drain()
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Spans[0].IsError)
	code, _ := findTag(segs[0].Spans[0], "rpc.status_code")
	assert.Equal(t, codes.OK.String(), code)
}

// fakeServerStream 只实现 Context 的 ServerStream
type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeServerStream) Context() context.Context { return s.ctx }

func TestGRPCStreamServerInterceptor(t *testing.T) {
	m, drain := newManager(t)

	md := metadata.MD{}
	xtrace.InjectToMetadata(md, upstreamCarrier())
	ss := &fakeServerStream{ctx: metadata.NewIncomingContext(context.Background(), md)}

	var active bool
	err := xtrace.GRPCStreamServerInterceptor(m)(nil, ss,
		&grpc.StreamServerInfo{FullMethod: "/order.v1.Order/Watch"},
		func(_ any, stream grpc.ServerStream) error {
			_, active = m.ActiveSpan(stream.Context())
			return nil
		})
	require.NoError(t, err)
	assert.True(t, active)

	segs := drain()
	require.Len(t, segs, 1)
	assert.Equal(t, "trace-up", segs[0].TraceID)
	assert.Equal(t, "/order.v1.Order/Watch", segs[0].Spans[0].OperationName)
}

// =============================================================================
// 客户端拦截器测试
// =============================================================================

func TestGRPCUnaryClientInterceptor(t *testing.T) {
	m, drain := newManager(t)

	ctx, entry := m.CreateEntrySpan(context.Background(), "/orders", nil)

	var outgoing metadata.MD
	invoker := func(ctx context.Context, _ string, _, _ any, _ *grpc.ClientConn, _ ...grpc.CallOption) error {
		outgoing, _ = metadata.FromOutgoingContext(ctx)
		return nil
	}

	err := xtrace.GRPCUnaryClientInterceptor(m)(ctx, "/stock.v1.Stock/Reserve", "req", nil, nil, invoker)
	require.NoError(t, err)

	down := xtrace.ExtractFromMetadata(m, outgoing)
	require.True(t, down.IsValid(xagent.V3))
	assert.Equal(t, m.TraceID(ctx), down.TraceID())
	assert.Equal(t, int32(1), down.SpanID())

	m.StopSpan(ctx, entry)

	segs := drain()
	require.Len(t, segs, 1)
	require.Len(t, segs[0].Spans, 2)
	exit := segs[0].Spans[0]
	assert.Equal(t, "/stock.v1.Stock/Reserve", exit.OperationName)
	assert.Equal(t, xspan.ComponentGRPC.ID, exit.ComponentID)
	assert.False(t, exit.IsError)
}
