// Package xmetrics 记录追踪引擎自身的运行指标。
//
// 引擎在热路径上只做计数：segment 完成/忽略/丢弃、栈纪律违规、无效 carrier、
// 关联数据被拒绝、内部故障与 span 数量超限。Recorder 基于 OpenTelemetry metric API，
// 未配置 MeterProvider 时使用全局 provider（默认为 noop）。
package xmetrics
