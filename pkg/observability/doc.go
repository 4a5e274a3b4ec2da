// Package observability 提供可观测性相关的子包。
//
// 子包列表：
//   - xlog: 结构化日志，基于 log/slog 扩展，支持 lumberjack 文件轮转
//   - xtrace: sw8 头在 HTTP/gRPC/MQ 上的注入与提取，以及对应的中间件
//   - xmetrics: 引擎事件计数，基于 OpenTelemetry metric
//   - xsampling: 新 trace 的采样策略
//
// 设计原则：
//   - 自动从 context 中提取追踪信息注入日志
//   - 引擎内部故障只记录日志和指标，从不向业务代码返回错误
package observability
