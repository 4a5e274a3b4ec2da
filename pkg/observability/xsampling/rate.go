package xsampling

import (
	"context"
	"math/rand/v2"
)

// RateSampler 固定比率随机采样
type RateSampler struct {
	rate float64
}

// NewRateSampler 创建固定比率采样器，rate 范围 [0.0, 1.0]
func NewRateSampler(rate float64) (*RateSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	return &RateSampler{rate: rate}, nil
}

// Rate 返回采样比率
func (s *RateSampler) Rate() float64 { return s.rate }

// ShouldSample 按比率随机决定
func (s *RateSampler) ShouldSample(context.Context) bool {
	switch {
	case s.rate <= 0:
		return false
	case s.rate >= 1:
		return true
	default:
		return rand.Float64() < s.rate //nolint:gosec // 采样不需要密码学随机数
	}
}
