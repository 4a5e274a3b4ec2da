// Package xtrace 提供追踪上下文在 HTTP/gRPC/消息头之间的传输适配。
//
// # 设计理念
//
// xtrace 只做传输层适配，不维护状态：传播数据的编解码由 xagent.ContextCarrier 完成，
// 本包负责把 carrier 的各个头项写入或读出具体的传输介质，
// 并提供创建 Entry/Exit Span 的服务端中间件与客户端包装。
//
// # 协议支持
//
// 三个传播头在所有介质上同名（均为小写，可直接用作 gRPC metadata key）：
//   - sw8: 追踪身份（trace id、父 segment、父 span、父服务等）
//   - sw8-correlation: 用户关联数据
//   - sw8-x: 扩展数据（跳过分析标志、发送时间戳）
//
// carrier 无效（未采样或没有活跃 ExitSpan）时不写 sw8 与 sw8-x，
// 非空的关联数据仍写入 sw8-correlation。
//
// # 使用方式
//
// HTTP：HTTPMiddleware(m) 服务端中间件，NewTransport(m, base) 客户端 RoundTripper。
// gRPC：GRPCUnaryServerInterceptor(m)、GRPCStreamServerInterceptor(m) 服务端拦截器，
// GRPCUnaryClientInterceptor(m) 客户端拦截器。
// 消息队列：InjectToMap / ExtractFromMap 适配 map[string]string 形态的消息头。
//
// 所有适配对 nil Manager 安全：此时创建的 Span 为 NoopSpan，请求照常处理。
package xtrace
