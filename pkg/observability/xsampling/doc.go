// Package xsampling 提供新 trace 的采样策略。
//
// 只有本进程发起的根 trace 需要采样决策；携带有效上游 carrier 的请求总是被记录，
// 由引擎在调用采样器之前判断。
//
// 策略：
//   - Always/Never: 全采样/不采样
//   - RateSampler: 固定比率随机采样
//   - KeyBasedSampler: 按 key（默认为操作名）的 xxhash 一致性采样
//   - WindowSampler: 每个时间窗口最多采样 N 条，窗口惰性滚动，不需要后台 goroutine
package xsampling
