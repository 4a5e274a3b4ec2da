// Package xlog 提供基于 log/slog 的结构化日志。
//
// 设计要点：
//   - 所有方法强制传入 context.Context，EnrichHandler 从中提取追踪标识
//     （trace_id/segment_id/span_id）自动注入日志
//   - 动态级别：Build 返回的 LoggerWithLevel 支持运行时调整级别
//   - 文件轮转：SetRotation 基于 lumberjack，Build 返回的 cleanup 负责关闭文件
//   - 失败不扩散：Handler 写入失败只计数并回调 OnError，不向调用方返回错误
//
// 追踪引擎内部的协议违规与故障均通过本包记录，并带上 component 属性标识来源。
package xlog
