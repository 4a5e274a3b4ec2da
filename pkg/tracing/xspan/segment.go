package xspan

import (
	"slices"
	"sync"
	"time"
)

// TraceSegment 一个 TracingContext 记录的 Span 序列
//
// Span 在结束时按结束顺序归档。segment 由所属上下文在 Span 栈清空且
// 没有未完成的异步 Span 时定稿，之后交给外部传输协作者。
type TraceSegment struct {
	mu sync.Mutex

	id          string
	traceID     string
	service     string
	instance    string
	createTime  time.Time
	refs        refSet
	spans       []TracingSpan
	sizeLimited bool
}

// NewTraceSegment 创建 segment
func NewTraceSegment(id, traceID, service, instance string) *TraceSegment {
	return &TraceSegment{
		id:         id,
		traceID:    traceID,
		service:    service,
		instance:   instance,
		createTime: time.Now(),
	}
}

// ID 返回 segment id
func (s *TraceSegment) ID() string { return s.id }

// Service 返回所属服务名
func (s *TraceSegment) Service() string { return s.service }

// ServiceInstance 返回所属服务实例名
func (s *TraceSegment) ServiceInstance() string { return s.instance }

// CreateTime 返回创建时间
func (s *TraceSegment) CreateTime() time.Time { return s.createTime }

// TraceID 返回关联的全局 trace id
func (s *TraceSegment) TraceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traceID
}

// RelatedGlobalTrace 采用上游传播来的 trace id
func (s *TraceSegment) RelatedGlobalTrace(traceID string) {
	if traceID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traceID = traceID
}

// Ref 追加因果边，返回是否为新边
func (s *TraceSegment) Ref(ref SegmentRef) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs.add(ref)
}

// Refs 返回因果边副本
func (s *TraceSegment) Refs() []SegmentRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.refs.refs)
}

// archive 归档已结束的 Span
func (s *TraceSegment) archive(span TracingSpan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spans = append(s.spans, span)
}

// Spans 返回已归档的 Span 副本
func (s *TraceSegment) Spans() []TracingSpan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.spans)
}

// MarkSizeLimited 标记 segment 因 span 数量上限而被截断
func (s *TraceSegment) MarkSizeLimited() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sizeLimited = true
}

// IsSizeLimited 报告 segment 是否被截断
func (s *TraceSegment) IsSizeLimited() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sizeLimited
}

// SegmentObject segment 的外发线上形态
type SegmentObject struct {
	TraceID         string       `json:"traceId"`
	TraceSegmentID  string       `json:"traceSegmentId"`
	Spans           []SpanObject `json:"spans"`
	Service         string       `json:"service"`
	ServiceInstance string       `json:"serviceInstance"`
	IsSizeLimited   bool         `json:"isSizeLimited"`
}

// Transform 映射为外发线上形态
//
// segment 级的跨进程/跨线程 ref 挂在首个 Span（通常是 EntrySpan）上输出；
// 若首个 Span 已持有同一条边则不重复。
func (s *TraceSegment) Transform() SegmentObject {
	s.mu.Lock()
	spans := slices.Clone(s.spans)
	refs := slices.Clone(s.refs.refs)
	obj := SegmentObject{
		TraceID:         s.traceID,
		TraceSegmentID:  s.id,
		Service:         s.service,
		ServiceInstance: s.instance,
		IsSizeLimited:   s.sizeLimited,
	}
	s.mu.Unlock()

	obj.Spans = make([]SpanObject, len(spans))
	for i, span := range spans {
		obj.Spans[i] = span.Transform()
	}
	if len(refs) > 0 {
		attachRefs(obj.Spans, refs)
	}
	return obj
}

// attachRefs 将 segment 级 ref 合并到 span id 最小的 Span 上
func attachRefs(spans []SpanObject, refs []SegmentRef) {
	if len(spans) == 0 {
		return
	}
	first := 0
	for i := range spans {
		if spans[i].SpanID < spans[first].SpanID {
			first = i
		}
	}
	target := &spans[first]
	for _, r := range refs {
		obj := r.Transform()
		dup := slices.ContainsFunc(target.Refs, func(o RefObject) bool {
			return o.ParentTraceSegmentID == obj.ParentTraceSegmentID && o.ParentSpanID == obj.ParentSpanID
		})
		if !dup {
			target.Refs = append(target.Refs, obj)
		}
	}
}
