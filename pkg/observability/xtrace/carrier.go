package xtrace

import "github.com/omeyang/xwalk/pkg/tracing/xagent"

// inject 遍历 carrier 的头项写入 set
//
// 各项独立写入：sw8 无效时跳过 sw8 与 sw8-x，非空的关联数据照常写入，
// 未采样的请求也把业务关联数据传给下游。
func inject(carrier *xagent.ContextCarrier, set func(key, value string)) {
	if carrier == nil {
		return
	}
	traced := carrier.IsValid(xagent.V3)
	carrier.ForEach(func(item xagent.CarrierItem) {
		if !traced && item.Key() != xagent.HeaderCorrelation {
			return
		}
		if v := item.Value(); v != "" {
			set(item.Key(), v)
		}
	})
}

// extract 用 get 读取各头项填充新 carrier
//
// 返回值总是非 nil，缺失或非法的头留空，由 CreateEntrySpan 判定是否有效。
func extract(m *xagent.Manager, get func(key string) string) *xagent.ContextCarrier {
	carrier := m.NewCarrier()
	carrier.ForEach(func(item xagent.CarrierItem) {
		if v := get(item.Key()); v != "" {
			item.SetValue(v)
		}
	})
	return carrier
}
