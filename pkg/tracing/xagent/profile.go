package xagent

import "sync/atomic"

// ProfileStatus segment 的性能剖析状态
type ProfileStatus int32

const (
	// ProfileNone 未剖析
	ProfileNone ProfileStatus = iota
	// ProfilePending 已匹配剖析任务，等待开始
	ProfilePending
	// ProfileProfiling 正在剖析
	ProfileProfiling
)

// String 返回状态名
func (s ProfileStatus) String() string {
	switch s {
	case ProfilePending:
		return "pending"
	case ProfileProfiling:
		return "profiling"
	default:
		return "none"
	}
}

// IsProfiling 报告是否处于剖析状态
func (s ProfileStatus) IsProfiling() bool { return s == ProfileProfiling }

// ProfileMatcher 判断以 endpoint 开始的 segment 是否需要剖析
type ProfileMatcher func(endpoint string) bool

// profileState 无锁读写：Span.IsProfiling 在持有 Span 锁时回调所属上下文
type profileState struct {
	status atomic.Int32
}

func (p *profileState) get() ProfileStatus { return ProfileStatus(p.status.Load()) }

func (p *profileState) set(s ProfileStatus) { p.status.Store(int32(s)) }

// adopt 跨 goroutine 延续时采纳上游的剖析状态，只升不降
func (p *profileState) adopt(s ProfileStatus) {
	for {
		cur := p.status.Load()
		if int32(s) <= cur {
			return
		}
		if p.status.CompareAndSwap(cur, int32(s)) {
			return
		}
	}
}
