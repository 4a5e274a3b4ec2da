// Package xctx 提供追踪上下文在 context.Context 中的存取。
//
// 进程内"当前追踪上下文"不依赖 goroutine 局部存储，而是显式地随 context.Context
// 传递：创建 Span 时返回携带上下文的新 ctx，调用方将其向下传递即可；
// 跨 goroutine 时由调用方显式传递 ctx 或使用快照（capture/continued）。
//
// 本包只依赖 Tracer 这一最小身份接口，使日志等基础设施包可以读取追踪标识，
// 而无需依赖追踪引擎本身。
package xctx
