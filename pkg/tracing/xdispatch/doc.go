// Package xdispatch 把定稿的 TraceSegment 异步交给外部传输协作者。
//
// 追踪引擎在应用的热路径上定稿 segment，不能阻塞也不能做 I/O。
// Dispatcher 用有界队列和固定数量的 worker 解耦两者：
// 队列满时直接丢弃并计数，Listener 的 panic 被恢复并记录日志。
//
// 停止时会处理完队列中剩余的 segment 再返回。
package xdispatch
