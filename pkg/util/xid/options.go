package xid

import "time"

type options struct {
	machineID      func() (uint16, error)
	checkMachineID func(uint16) bool
	now            func() time.Time
}

// Option 生成器配置选项
type Option func(*options)

// WithMachineID 设置机器 id 获取函数，默认 DefaultMachineID
func WithMachineID(fn func() (uint16, error)) Option {
	return func(o *options) {
		o.machineID = fn
	}
}

// WithCheckMachineID 设置机器 id 校验函数，返回 false 时 NewGenerator 失败
func WithCheckMachineID(fn func(uint16) bool) Option {
	return func(o *options) {
		o.checkMachineID = fn
	}
}

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
