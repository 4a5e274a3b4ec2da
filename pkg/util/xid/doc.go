// Package xid 生成全局唯一的 trace id 与 segment id。
//
// 格式：
//
//	<进程 uuid 十六进制>.<实例判别码>.<毫秒时间戳*10000 + 序号>
//
// 实例判别码在生成器创建时由 sonyflake 产生一次（包含机器 id 与启动时间），
// 使不同机器、不同进程、同一进程内的多个生成器互不冲突；热路径只有一次原子自增
// 与一次时间读取，不会阻塞、不做 I/O。
//
// 机器 id 获取策略见 DefaultMachineID。
package xid
