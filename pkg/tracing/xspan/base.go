package xspan

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

// KeyValue 有序的字符串键值对
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type tagEntry struct {
	tag   xtag.Tag
	value string
}

type logEntry struct {
	ts     time.Time
	fields []KeyValue
}

// base 三种可记录 Span 的公共实现
//
// 嵌套深度 depth 用于同类型 Span 重入：
//   - Entry: 最内层生效，只有 depth == maxDepth 时写入生效，重入时清空已有记录
//   - Exit: 最外层生效，只有 depth == 1 时写入生效
//   - Local: 不重入，写入总是生效
type base struct {
	mu sync.Mutex

	self  Span
	owner Owner
	opts  *options

	kind          Kind
	id            int32
	parentID      int32
	operationName string
	component     Component
	layer         Layer
	peer          string
	tags          []tagEntry
	logs          []logEntry
	refs          refSet
	errorOccurred bool
	skipAnalysis  bool
	startTime     time.Time
	endTime       time.Time

	depth    int
	maxDepth int

	asyncMode    bool
	asyncStopped bool
}

func (b *base) init(self Span, kind Kind, id, parentID int32, operationName string, owner Owner, opts []Option) {
	b.self = self
	b.owner = owner
	b.opts = newOptions(opts)
	b.kind = kind
	b.id = id
	b.parentID = parentID
	b.operationName = operationName
	b.startTime = b.opts.now()
	b.depth = 1
	b.maxDepth = 1
}

// writable 调用方持有 b.mu
func (b *base) writable() bool {
	switch b.kind {
	case KindEntry:
		return b.depth == b.maxDepth
	case KindExit:
		return b.depth == 1
	default:
		return true
	}
}

// SpanID 返回 span id
func (b *base) SpanID() int32 { return b.id }

// ParentSpanID 返回父 span id
func (b *base) ParentSpanID() int32 { return b.parentID }

// Kind 返回 Span 类型
func (b *base) Kind() Kind { return b.kind }

// IsEntry 报告是否为 EntrySpan
func (b *base) IsEntry() bool { return b.kind == KindEntry }

// IsExit 报告是否为 ExitSpan
func (b *base) IsExit() bool { return b.kind == KindExit }

// OperationName 返回操作名
func (b *base) OperationName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.operationName
}

// SetOperationName 设置操作名
func (b *base) SetOperationName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writable() {
		b.operationName = name
	}
}

// SetComponent 设置组件
func (b *base) SetComponent(c Component) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writable() {
		b.component = c
	}
}

// SetLayer 设置技术层
func (b *base) SetLayer(l Layer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writable() {
		b.layer = l
	}
}

// SetPeer 设置对端地址
func (b *base) SetPeer(peer string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writable() {
		b.peer = peer
	}
}

// Peer 返回对端地址
func (b *base) Peer() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peer
}

// Tag 写入标签，同一标签后写覆盖并保持首次写入的位置
func (b *base) Tag(tag xtag.Tag, value string) {
	if !tag.IsValid() {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.writable() {
		return
	}
	for i := range b.tags {
		if b.tags[i].tag.ID() == tag.ID() {
			b.tags[i].value = value
			return
		}
	}
	b.tags = append(b.tags, tagEntry{tag: tag, value: value})
}

// TagString 按名称写入标签
//
// Deprecated: 使用 Tag 与预定义的 xtag 标签。
func (b *base) TagString(key, value string) {
	b.Tag(b.opts.registry.OfKey(key), value)
}

// TagValue 读取标签值
func (b *base) TagValue(tag xtag.Tag) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tags {
		if t.tag.ID() == tag.ID() {
			return t.value, true
		}
	}
	return "", false
}

// Log 记录错误事件并标记 Span 出错，err 为 nil 时忽略
func (b *base) Log(err error) {
	if err == nil {
		return
	}
	fields := []KeyValue{
		{Key: "event", Value: "error"},
		{Key: "error.kind", Value: fmt.Sprintf("%T", err)},
		{Key: "message", Value: err.Error()},
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.writable() {
		return
	}
	b.errorOccurred = true
	b.logs = append(b.logs, logEntry{ts: b.opts.now(), fields: fields})
}

// LogEvent 记录事件，字段按 key 排序保证输出稳定
func (b *base) LogEvent(ts time.Time, fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	kvs := make([]KeyValue, 0, len(fields))
	for _, k := range slices.Sorted(maps.Keys(fields)) {
		kvs = append(kvs, KeyValue{Key: k, Value: fmt.Sprint(fields[k])})
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.writable() {
		return
	}
	b.logs = append(b.logs, logEntry{ts: ts, fields: kvs})
}

// ErrorOccurred 标记 Span 出错
func (b *base) ErrorOccurred() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writable() {
		b.errorOccurred = true
	}
}

// IsErrorOccurred 报告 Span 是否出错
func (b *base) IsErrorOccurred() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errorOccurred
}

// Start 以当前时间重置开始时间
func (b *base) Start() {
	b.StartAt(b.opts.now())
}

// StartAt 以指定时间重置开始时间
func (b *base) StartAt(t time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.startTime = t
}

// StartTime 返回开始时间
func (b *base) StartTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.startTime
}

// EndTime 返回结束时间，未结束时为零值
func (b *base) EndTime() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endTime
}

// Ref 追加因果边
func (b *base) Ref(ref SegmentRef) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs.add(ref)
}

// Refs 返回因果边副本
func (b *base) Refs() []SegmentRef {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.refs.refs)
}

// IsProfiling 报告所属 segment 是否正在被性能剖析
func (b *base) IsProfiling() bool {
	return b.owner != nil && b.owner.IsProfiling()
}

// SkipAnalysis 通知后端跳过分析
func (b *base) SkipAnalysis() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.skipAnalysis = true
}

// IsSkipAnalysis 报告是否跳过分析
func (b *base) IsSkipAnalysis() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipAnalysis
}

// PrepareForAsync 声明异步结束
func (b *base) PrepareForAsync() {
	b.mu.Lock()
	if b.asyncMode {
		b.mu.Unlock()
		b.report(ErrAsyncPrepared)
		return
	}
	b.asyncMode = true
	b.mu.Unlock()

	if b.owner != nil {
		b.owner.AwaitFinishAsync()
	}
}

// AsyncFinish 异步结束 Span
func (b *base) AsyncFinish() {
	b.mu.Lock()
	switch {
	case !b.asyncMode:
		b.mu.Unlock()
		b.report(ErrAsyncNotPrepared)
		return
	case b.asyncStopped:
		b.mu.Unlock()
		b.report(ErrAsyncFinished)
		return
	}
	b.asyncStopped = true
	b.endTime = b.opts.now()
	b.mu.Unlock()

	if b.owner != nil {
		b.owner.AsyncStop(b.self)
	}
}

func (b *base) report(err error) {
	if b.owner != nil {
		b.owner.ReportViolation(b.self, err)
	}
}

// reenter 增加嵌套深度，调用方持有 b.mu
func (b *base) reenter() {
	b.depth++
	b.maxDepth = b.depth
}

// Finish 减少嵌套深度，深度归零时结束并归档
//
// 异步模式下结束时间由 AsyncFinish 写入，这里只归档。
func (b *base) Finish(seg *TraceSegment) bool {
	b.mu.Lock()
	b.depth--
	if b.depth > 0 {
		b.mu.Unlock()
		return false
	}
	if !b.asyncMode {
		b.endTime = b.opts.now()
	}
	b.mu.Unlock()

	if ts, ok := b.self.(TracingSpan); ok && seg != nil {
		seg.archive(ts)
	}
	return true
}

// Transform 映射为外发线上形态
func (b *base) Transform() SpanObject {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj := SpanObject{
		SpanID:        b.id,
		ParentSpanID:  b.parentID,
		StartTime:     b.startTime.UnixMilli(),
		Refs:          b.refs.transform(),
		OperationName: b.operationName,
		Peer:          b.peer,
		SpanType:      b.kind.String(),
		SpanLayer:     b.layer.String(),
		ComponentID:   b.component.ID,
		IsError:       b.errorOccurred,
		SkipAnalysis:  b.skipAnalysis,
	}
	if !b.endTime.IsZero() {
		obj.EndTime = b.endTime.UnixMilli()
	}
	if len(b.tags) > 0 {
		obj.Tags = make([]KeyValue, len(b.tags))
		for i, t := range b.tags {
			obj.Tags[i] = KeyValue{Key: t.tag.Key(), Value: t.value}
		}
	}
	if len(b.logs) > 0 {
		obj.Logs = make([]LogObject, len(b.logs))
		for i, l := range b.logs {
			obj.Logs[i] = LogObject{Time: l.ts.UnixMilli(), Data: slices.Clone(l.fields)}
		}
	}
	return obj
}

// SpanObject Span 的外发线上形态
type SpanObject struct {
	SpanID        int32       `json:"spanId"`
	ParentSpanID  int32       `json:"parentSpanId"`
	StartTime     int64       `json:"startTime"`
	EndTime       int64       `json:"endTime"`
	Refs          []RefObject `json:"refs,omitempty"`
	OperationName string      `json:"operationName"`
	Peer          string      `json:"peer,omitempty"`
	SpanType      string      `json:"spanType"`
	SpanLayer     string      `json:"spanLayer"`
	ComponentID   int         `json:"componentId"`
	IsError       bool        `json:"isError"`
	Tags          []KeyValue  `json:"tags,omitempty"`
	Logs          []LogObject `json:"logs,omitempty"`
	SkipAnalysis  bool        `json:"skipAnalysis"`
}

// LogObject 日志事件的外发线上形态
type LogObject struct {
	Time int64      `json:"time"`
	Data []KeyValue `json:"data"`
}
