package xboot

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNilService 登记了 nil 服务
	ErrNilService = errors.New("xboot: nil service")

	// ErrNilFunc Group.Go 收到 nil 函数
	ErrNilFunc = errors.New("xboot: nil function")

	// ErrEmptyCapability capability 为空
	ErrEmptyCapability = errors.New("xboot: empty capability")

	// ErrConflict 同一 capability 存在多个不可替换的实现
	ErrConflict = errors.New("xboot: service conflict")

	// ErrSignal 收到终止信号，可用 errors.Is 判断
	ErrSignal = errors.New("received signal")
)

// SignalError 携带具体信号的终止原因
type SignalError struct {
	Signal os.Signal
}

func (e *SignalError) Error() string {
	if e.Signal == nil {
		return "received signal <nil>"
	}
	return fmt.Sprintf("received signal %s", e.Signal)
}

// Unwrap 使 errors.Is(err, ErrSignal) 成立
func (e *SignalError) Unwrap() error {
	return ErrSignal
}

// PhaseError 生命周期阶段中单个服务的失败
type PhaseError struct {
	Phase      string
	Capability string
	Err        error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("xboot: %s %s: %v", e.Phase, e.Capability, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}
