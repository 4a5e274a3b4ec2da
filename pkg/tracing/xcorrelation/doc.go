// Package xcorrelation 实现有界的用户关联数据（correlation context）。
//
// 关联数据随追踪标识一起跨进程（sw8-correlation 头）与跨线程（快照克隆）传播。
// 两个上限在进程范围内生效：
//   - 元素数量上限 MaxElements：新 key 达到上限时被拒绝；已存在的 key 覆盖写不受限
//   - 值长度上限 MaxValueLength：按 rune 计数，超长的值被拒绝且不修改数据
//
// 自动标签：配置在 AutoTagKeys 中的 key 在首次插入且存在活跃 Span 时，
// 其值会被镜像为该 Span 的同名标签（单向、尽力而为）。
//
// 并发模型：数据按 xxhash 分片，每个分片独立加锁，元素计数使用原子 CAS 预留，
// 任意 goroutine 可以并发 Put/Get，不存在全局粗粒度锁，且上限在跨分片并发下不会被突破。
//
// 线上格式：
//
//	base64(k1):base64(v1),base64(k2):base64(v2)
//
// 条目按首次插入顺序输出。
package xcorrelation
