// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xid: 全局唯一 id 生成（uuid 前缀 + sonyflake 序列），用于 trace id 和 segment id
//   - xjson: 命令行与调试输出使用的 JSON 格式化
package util
