// Package context 提供上下文相关的子包。
//
// 子包列表：
//   - xctx: 在 context.Context 上绑定当前追踪上下文，并导出日志所需的追踪字段
//
// 设计原则：
//   - 当前追踪上下文通过 context.Context 传递，不使用 goroutine 本地存储
//   - 跨 goroutine 传播走 ContextSnapshot，而不是共享 context 值
package context
