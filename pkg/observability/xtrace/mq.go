package xtrace

import "github.com/omeyang/xwalk/pkg/tracing/xagent"

// InjectToMap 将 carrier 写入消息头 map
//
// 适用于 Kafka/Pulsar/NATS 等以字符串键值对承载消息头的客户端。
func InjectToMap(headers map[string]string, carrier *xagent.ContextCarrier) {
	if headers == nil {
		return
	}
	inject(carrier, func(key, value string) { headers[key] = value })
}

// ExtractFromMap 从消息头 map 构造 carrier，headers 为 nil 时返回空 carrier
func ExtractFromMap(m *xagent.Manager, headers map[string]string) *xagent.ContextCarrier {
	return extract(m, func(key string) string { return headers[key] })
}
