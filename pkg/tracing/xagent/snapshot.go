package xagent

import (
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
)

// ContextSnapshot 跨 goroutine 传播的时间点拷贝
//
// 由 Capture 创建、被唯一一次 Continued 消费。关联数据、扩展数据与剖析状态在捕获时深拷贝，
// 之后对源上下文的修改不会影响已交出的快照。
type ContextSnapshot struct {
	traceID        string
	segmentID      string
	spanID         int32
	parentEndpoint string
	correlation    *xcorrelation.Context
	extension      *ExtensionContext
	profile        ProfileStatus
}

// TraceID 返回 trace id
func (s *ContextSnapshot) TraceID() string { return s.traceID }

// SegmentID 返回捕获时的 segment id
func (s *ContextSnapshot) SegmentID() string { return s.segmentID }

// SpanID 返回捕获时的活跃 span id
func (s *ContextSnapshot) SpanID() int32 { return s.spanID }

// ParentEndpoint 返回捕获时的主端点
func (s *ContextSnapshot) ParentEndpoint() string { return s.parentEndpoint }

// Correlation 返回捕获时的关联数据拷贝
func (s *ContextSnapshot) Correlation() *xcorrelation.Context { return s.correlation }

// ProfileStatus 返回捕获时的剖析状态
func (s *ContextSnapshot) ProfileStatus() ProfileStatus { return s.profile }

// IsValid 报告快照是否可延续
func (s *ContextSnapshot) IsValid() bool {
	return s != nil && s.segmentID != "" && s.spanID > -1 && s.traceID != ""
}

// IsFromCurrent 报告快照是否来自 tc 本身，自延续是空操作，可以跳过
func (s *ContextSnapshot) IsFromCurrent(tc TracerContext) bool {
	if s == nil || tc == nil {
		return false
	}
	return s.segmentID != "" && s.segmentID == tc.SegmentID()
}
