package xtrace

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/omeyang/xwalk/pkg/tracing/xagent"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

// =============================================================================
// gRPC Metadata 提取/注入
// =============================================================================

// InjectToMetadata 将 carrier 的传播头写入 md
func InjectToMetadata(md metadata.MD, carrier *xagent.ContextCarrier) {
	if md == nil {
		return
	}
	inject(carrier, func(key, value string) { md.Set(key, value) })
}

// ExtractFromMetadata 从 gRPC metadata 构造 carrier
//
// 同名 key 有多个值时取第一个。
func ExtractFromMetadata(m *xagent.Manager, md metadata.MD) *xagent.ContextCarrier {
	return extract(m, func(key string) string { return firstValue(md, key) })
}

// ExtractFromIncomingContext 从 incoming context 的 metadata 构造 carrier
func ExtractFromIncomingContext(m *xagent.Manager, ctx context.Context) *xagent.ContextCarrier {
	md, _ := metadata.FromIncomingContext(ctx)
	return ExtractFromMetadata(m, md)
}

// InjectToOutgoingContext 将 carrier 追加到 outgoing metadata
//
// 已有的 outgoing metadata 被复制后修改，不影响其他持有者。
// carrier 既无有效 sw8 也无关联数据时原样返回 ctx。
func InjectToOutgoingContext(ctx context.Context, carrier *xagent.ContextCarrier) context.Context {
	if carrier == nil || (!carrier.IsValid(xagent.V3) && carrier.Correlation().Len() == 0) {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.New(nil)
	}
	InjectToMetadata(md, carrier)
	return metadata.NewOutgoingContext(ctx, md)
}

func firstValue(md metadata.MD, key string) string {
	if vals := md.Get(key); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// =============================================================================
// gRPC 服务端拦截器
// =============================================================================

// GRPCUnaryServerInterceptor 返回 gRPC 一元服务端拦截器
//
// 以完整方法名为操作名创建 EntrySpan，handler 返回错误时记录错误并写入 rpc.status_code。
func GRPCUnaryServerInterceptor(m *xagent.Manager) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := ""
		if info != nil {
			method = info.FullMethod
		}
		ctx, span := startServerSpan(m, ctx, method)
		resp, err := handler(ctx, req)
		finishRPCSpan(m, ctx, span, err)
		return resp, err
	}
}

// GRPCStreamServerInterceptor 返回 gRPC 流式服务端拦截器
//
// EntrySpan 覆盖整个流的生命周期，handler 通过 stream.Context() 取得绑定后的 ctx。
func GRPCStreamServerInterceptor(m *xagent.Manager) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		method := ""
		if info != nil {
			method = info.FullMethod
		}
		ctx, span := startServerSpan(m, ss.Context(), method)
		err := handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
		finishRPCSpan(m, ctx, span, err)
		return err
	}
}

func startServerSpan(m *xagent.Manager, ctx context.Context, method string) (context.Context, xspan.Span) {
	ctx, span := m.CreateEntrySpan(ctx, method, ExtractFromIncomingContext(m, ctx))
	span.SetComponent(xspan.ComponentGRPC)
	span.SetLayer(xspan.LayerRPCFramework)
	return ctx, span
}

func finishRPCSpan(m *xagent.Manager, ctx context.Context, span xspan.Span, err error) {
	span.Tag(xtag.RPCStatusCode, status.Code(err).String())
	if err != nil {
		span.Log(err)
	}
	m.StopSpan(ctx, span)
}

// wrappedServerStream 替换 Context() 的 ServerStream
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context 返回绑定了追踪上下文的 ctx
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// =============================================================================
// gRPC 客户端拦截器
// =============================================================================

// GRPCUnaryClientInterceptor 返回 gRPC 一元客户端拦截器
//
// 以完整方法名为操作名、连接目标为对端创建 ExitSpan，并把传播头写入 outgoing metadata。
func GRPCUnaryClientInterceptor(m *xagent.Manager) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		peer := ""
		if cc != nil {
			peer = cc.Target()
		}
		carrier := m.NewCarrier()
		ctx, span := m.CreateExitSpan(ctx, method, peer, carrier)
		span.SetComponent(xspan.ComponentGRPC)
		span.SetLayer(xspan.LayerRPCFramework)

		err := invoker(InjectToOutgoingContext(ctx, carrier), method, req, reply, cc, opts...)
		finishRPCSpan(m, ctx, span, err)
		return err
	}
}
