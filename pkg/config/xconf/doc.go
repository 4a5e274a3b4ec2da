// Package xconf 加载追踪引擎的配置，基于 koanf 实现。
//
// # 设计理念
//
// xconf 把 YAML/JSON 配置解析为 AgentConfig，并转换为引擎需要的各项参数：
//   - Settings(): 服务身份、Span 上限、关联数据上限（xagent.Settings）
//   - Sampler(): 按 sample_rate / sample_n_per_window 构造采样器
//   - Logging.Build(): 按日志配置构造 xlog.Logger（可选文件轮转）
//   - Options(): 以上全部组合为 xagent.New 的选项
//
// 未出现在配置中的字段保持 DefaultConfig() 的默认值。
// 加载后立即执行 Validate，非法配置不会被采纳。
//
// # 支持的格式
//
//   - YAML（推荐）：.yaml, .yml
//   - JSON：.json
//
// # 配置示例
//
//	agent:
//	  service_name: order
//	  instance_name: order-1
//	  span_limit_per_segment: 300
//	  sample_rate: 1
//	  sample_n_per_window: 0
//	  sample_window: 3s
//	  profile_endpoints: ["/orders"]
//	correlation:
//	  element_max_number: 3
//	  value_max_length: 128
//	  auto_tag_keys: ["tenant"]
//	dispatch:
//	  workers: 1
//	  queue_size: 1024
//	logging:
//	  level: info
//	  format: json
//	  file: /var/log/order/agent.log
//
// # 热重载
//
// Watch 基于 fsnotify 监视配置文件所在目录，内置防抖，支持编辑器的原子写入。
// 重载失败时保留旧配置并通过回调报告错误。
// ApplySettings 返回的回调把新的 Settings 推送给 Manager：
// 只影响之后新建的追踪上下文，已存在的上下文继续使用各自的快照。
// 采样器、投递队列与日志配置不参与热重载。
package xconf
