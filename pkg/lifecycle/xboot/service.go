package xboot

import "context"

// Service 由 Services 管理生命周期的子系统
//
// 各阶段方法在同一个 goroutine 上按顺序调用。返回的错误只被记录，不影响其余服务。
type Service interface {
	// Prepare 准备阶段，所有服务 Prepare 完成后才开始 Boot
	Prepare(ctx context.Context) error
	// Boot 启动阶段
	Boot(ctx context.Context) error
	// OnComplete 全部服务启动后调用
	OnComplete(ctx context.Context) error
	// Shutdown 关闭阶段
	Shutdown(ctx context.Context) error
}

// Runner 需要常驻运行的服务，Run 应在 ctx 取消后返回
type Runner interface {
	Run(ctx context.Context) error
}

// Base 所有阶段均为空操作，嵌入后只需实现关心的方法
type Base struct{}

func (Base) Prepare(context.Context) error    { return nil }
func (Base) Boot(context.Context) error       { return nil }
func (Base) OnComplete(context.Context) error { return nil }
func (Base) Shutdown(context.Context) error   { return nil }

// Mode 登记模式
type Mode int

const (
	// ModeStandard 标准实现
	ModeStandard Mode = iota
	// ModeDefault 默认实现，可被 ModeOverride 替换
	ModeDefault
	// ModeOverride 替换默认实现
	ModeOverride
)

// String 返回模式名称
func (m Mode) String() string {
	switch m {
	case ModeStandard:
		return "standard"
	case ModeDefault:
		return "default"
	case ModeOverride:
		return "override"
	default:
		return "unknown"
	}
}
