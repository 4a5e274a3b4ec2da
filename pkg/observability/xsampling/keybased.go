package xsampling

import (
	"context"

	"github.com/cespare/xxhash/v2"
)

// KeyFunc 从 ctx 提取采样 key
type KeyFunc func(ctx context.Context) string

// KeyBasedSampler 基于 key 的一致性采样：相同 key 在相同 rate 下决策相同
//
// key 为空时回退到随机采样，保持近似采样率但失去一致性。
type KeyBasedSampler struct {
	rate     float64
	keyFunc  KeyFunc
	fallback *RateSampler
}

// NewKeyBasedSampler 创建一致性采样器，keyFunc 为 nil 时返回 ErrNilKeyFunc
func NewKeyBasedSampler(rate float64, keyFunc KeyFunc) (*KeyBasedSampler, error) {
	if err := validateRate(rate); err != nil {
		return nil, err
	}
	if keyFunc == nil {
		return nil, ErrNilKeyFunc
	}
	return &KeyBasedSampler{
		rate:     rate,
		keyFunc:  keyFunc,
		fallback: &RateSampler{rate: rate},
	}, nil
}

// NewOperationSampler 按操作名一致性采样
func NewOperationSampler(rate float64) (*KeyBasedSampler, error) {
	return NewKeyBasedSampler(rate, Operation)
}

// Rate 返回采样比率
func (s *KeyBasedSampler) Rate() float64 { return s.rate }

// ShouldSample 以 key 的哈希值决定是否采样
func (s *KeyBasedSampler) ShouldSample(ctx context.Context) bool {
	if s.rate <= 0 {
		return false
	}
	if s.rate >= 1 {
		return true
	}
	if ctx == nil {
		return s.fallback.ShouldSample(ctx)
	}
	key := s.keyFunc(ctx)
	if key == "" {
		return s.fallback.ShouldSample(ctx)
	}
	// 取高 53 位映射到 [0, 1)，与 float64 尾数精度对齐
	h := xxhash.Sum64String(key)
	return float64(h>>11)/float64(uint64(1)<<53) < s.rate
}
