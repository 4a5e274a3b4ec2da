// Package xtag 提供 Span 标签的驻留注册表。
//
// 每个标签名称对应唯一的数字 id。类型化 API（预定义的 Tag 变量）与
// 已废弃的字符串 API（Registry.OfKey）解析到同一张注册表，因此无论经由
// 哪条路径写入，Span 内部存储的都是同一个 id，二者不可区分。
//
// 预定义标签占用 1..MaxPredefinedID 的 id 区间，运行期驻留的自定义标签
// 从 MaxPredefinedID+1 开始单调分配。
package xtag
