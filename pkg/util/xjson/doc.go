// Package xjson 提供命令行和调试输出使用的 JSON 格式化工具。
//
// 与直接调用 [encoding/json] 的区别：
//
//   - 不转义 HTML 字符。sw8 字段里常见的 "<GET>/orders" 一类端点名原样输出，
//     便于人工比对。
//   - [Write] 以换行结尾，适合逐条写到终端或管道。
//
// # 功能概览
//
//   - [PrettyE]: 格式化为字符串，失败时返回 [ErrMarshal] 包装的错误。
//   - [Pretty]: 便捷版本，失败时返回 "<marshal error: ...>" 标记字符串。
//   - [Write]: 格式化后写入 io.Writer。
package xjson
