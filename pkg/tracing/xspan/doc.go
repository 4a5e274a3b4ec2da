// Package xspan 定义 Span 模型、TraceSegment 与 SegmentRef。
//
// Span 有三种变体，共享同一套契约（Span 接口）：
//   - EntrySpan: 入站边界，承载本 segment 的跨进程 ref
//   - LocalSpan: 进程内工作，SetPeer 为空操作
//   - ExitSpan: 出站边界，必须带 peer 地址，是下游 carrier 的来源
//
// Span 在停止前只归创建它的 TracingContext 所有，所有方法均为并发安全，
// 以支持异步完成（PrepareForAsync/AsyncFinish）时跨 goroutine 写入结束时间。
//
// 标签存储以 xtag 的数字 id 为键，有序且同 key 后写覆盖；
// 类型化的 Tag 与已废弃的 TagString 最终写入同一存储。
package xspan
