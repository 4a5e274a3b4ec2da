package xlog

import (
	"log/slog"
	"time"
)

// 常用属性 key
const (
	KeyError     = "error"
	KeyComponent = "component"
	KeyOperation = "operation"
	KeyDuration  = "duration"
	KeyPanic     = "panic"
)

// Err 错误属性，err 为 nil 时返回空属性（被 slog 忽略）
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Component 组件名属性，标识日志来源
func Component(name string) slog.Attr {
	return slog.String(KeyComponent, name)
}

// Operation 操作名属性
func Operation(name string) slog.Attr {
	return slog.String(KeyOperation, name)
}

// Duration 耗时属性
func Duration(d time.Duration) slog.Attr {
	return slog.String(KeyDuration, d.String())
}

// Panic 恢复出的 panic 值
func Panic(v any) slog.Attr {
	return slog.Any(KeyPanic, v)
}
