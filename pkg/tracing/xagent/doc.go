// Package xagent 是进程内追踪上下文引擎。
//
// 核心概念：
//   - TracingContext: Span 栈状态机，拥有 segment 身份，提供 inject/extract/capture/continued
//   - ContextCarrier: 跨进程传播信封，线上格式为 sw8 v3 及其关联/扩展头
//   - ContextSnapshot: 跨 goroutine 传播的时间点拷贝
//   - Manager: 显式构造的注册对象，替代进程级单例与线程局部的"当前上下文"
//
// 当前上下文通过 context.Context 传递：Manager 的 Create* 方法返回绑定了追踪上下文的新 ctx，
// 调用方沿调用链继续传递它。
//
// 引擎运行在宿主应用的热路径上：任何操作都不阻塞、不做 I/O，
// 内部故障在 Manager 边界被恢复并记录日志，不会传播到宿主调用链。
//
// 基本用法：
//
//	m, err := xagent.New(xagent.WithSettings(settings), xagent.WithListener(reporter))
//	if err != nil { ... }
//	m.Start()
//	defer m.Close()
//
//	ctx, entry := m.CreateEntrySpan(ctx, "/orders", xtrace.ExtractFromHeader(m, r.Header))
//	defer m.StopSpan(ctx, entry)
package xagent
