// Package tracing 汇集进程内追踪上下文引擎的各个组成部分。
//
// 子包按依赖顺序（叶子在前）：
//   - xtag: 标签驻留注册表（数字 id ↔ 名称）
//   - xcorrelation: 有界的用户关联数据（sw8-correlation）
//   - xspan: Span 模型（Entry/Local/Exit）、TraceSegment 与 SegmentRef
//   - xdispatch: 已完成 segment 的异步非阻塞投递
//   - xagent: TracingContext 状态机、ContextCarrier、ContextSnapshot 与 Manager
//
// 传输层适配（HTTP/gRPC/MQ 头）位于 pkg/observability/xtrace。
package tracing
