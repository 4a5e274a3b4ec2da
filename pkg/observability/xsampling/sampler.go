package xsampling

import (
	"context"
	"errors"
	"math"
)

var (
	// ErrInvalidRate 采样比率不在 [0.0, 1.0] 范围内
	ErrInvalidRate = errors.New("xsampling: rate must be in [0.0, 1.0]")

	// ErrNilKeyFunc KeyBasedSampler 的 keyFunc 为 nil
	ErrNilKeyFunc = errors.New("xsampling: keyFunc must not be nil")

	// ErrInvalidWindow WindowSampler 的窗口或上限不合法
	ErrInvalidWindow = errors.New("xsampling: window and limit must be positive")
)

// Sampler 采样策略，实现必须并发安全且不阻塞
type Sampler interface {
	// ShouldSample 判断是否采样。ctx 可通过 WithOperation 携带操作名。
	ShouldSample(ctx context.Context) bool
}

type alwaysSampler struct{}

func (alwaysSampler) ShouldSample(context.Context) bool { return true }

type neverSampler struct{}

func (neverSampler) ShouldSample(context.Context) bool { return false }

// Always 返回全采样策略
func Always() Sampler { return alwaysSampler{} }

// Never 返回不采样策略
func Never() Sampler { return neverSampler{} }

func validateRate(rate float64) error {
	if math.IsNaN(rate) || rate < 0 || rate > 1 {
		return ErrInvalidRate
	}
	return nil
}

type operationKey struct{}

// WithOperation 将待采样的操作名写入 ctx，供 KeyBasedSampler 使用
func WithOperation(ctx context.Context, operation string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, operationKey{}, operation)
}

// Operation 读取 WithOperation 写入的操作名
func Operation(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(operationKey{}).(string)
	return v
}
