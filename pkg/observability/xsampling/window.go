package xsampling

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultWindow 默认采样窗口
const DefaultWindow = 3 * time.Second

// WindowSampler 每个时间窗口最多采样 limit 条
//
// 窗口在下一次调用时惰性滚动：CAS 抢到滚动权的调用方重置计数，
// 不需要后台定时器，也就不需要关闭。
type WindowSampler struct {
	limit       int64
	window      int64 // 纳秒
	windowStart atomic.Int64
	count       atomic.Int64
	now         func() time.Time
}

// NewWindowSampler 创建窗口采样器
func NewWindowSampler(limit int, window time.Duration) (*WindowSampler, error) {
	return newWindowSampler(limit, window, time.Now)
}

func newWindowSampler(limit int, window time.Duration, now func() time.Time) (*WindowSampler, error) {
	if limit <= 0 || window <= 0 {
		return nil, ErrInvalidWindow
	}
	s := &WindowSampler{
		limit:  int64(limit),
		window: int64(window),
		now:    now,
	}
	s.windowStart.Store(now().UnixNano())
	return s, nil
}

// ShouldSample 当前窗口未满时采样
func (s *WindowSampler) ShouldSample(context.Context) bool {
	s.roll()
	for {
		cur := s.count.Load()
		if cur >= s.limit {
			return false
		}
		if s.count.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// ForceSampled 记录一条被强制采样的 trace（如携带上游 carrier），占用窗口名额
func (s *WindowSampler) ForceSampled() {
	s.roll()
	s.count.Add(1)
}

func (s *WindowSampler) roll() {
	now := s.now().UnixNano()
	start := s.windowStart.Load()
	if now-start < s.window {
		return
	}
	if s.windowStart.CompareAndSwap(start, now) {
		s.count.Store(0)
	}
}
