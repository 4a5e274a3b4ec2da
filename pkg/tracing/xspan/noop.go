package xspan

import (
	"time"

	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

// NoopSpan 不记录任何内容的 Span
//
// 用于未采样的上下文以及超过 span 数量上限之后的创建请求。
// 保留 Kind 与操作名，使插件代码对 IsEntry/IsExit 的判断保持一致。
type NoopSpan struct {
	kind          Kind
	operationName string
}

var _ Span = (*NoopSpan)(nil)

// NewNoopSpan 创建 NoopSpan
func NewNoopSpan(kind Kind, operationName string) *NoopSpan {
	return &NoopSpan{kind: kind, operationName: operationName}
}

func (*NoopSpan) SpanID() int32 { return 0 }
func (*NoopSpan) ParentSpanID() int32 { return -1 }
func (s *NoopSpan) Kind() Kind { return s.kind }
func (s *NoopSpan) IsEntry() bool { return s.kind == KindEntry }
func (s *NoopSpan) IsExit() bool { return s.kind == KindExit }
func (s *NoopSpan) OperationName() string { return s.operationName }
func (*NoopSpan) SetOperationName(string) {}
func (*NoopSpan) SetComponent(Component) {}
func (*NoopSpan) SetLayer(Layer) {}
func (*NoopSpan) SetPeer(string) {}
func (*NoopSpan) Tag(xtag.Tag, string) {}
func (*NoopSpan) TagString(string, string) {}
func (*NoopSpan) Log(error) {}
func (*NoopSpan) LogEvent(time.Time, map[string]any) {}
func (*NoopSpan) ErrorOccurred() {}
func (*NoopSpan) Start() {}
func (*NoopSpan) StartAt(time.Time) {}
func (*NoopSpan) Ref(SegmentRef) {}
func (*NoopSpan) IsProfiling() bool { return false }
func (*NoopSpan) SkipAnalysis() {}
func (*NoopSpan) PrepareForAsync() {}
func (*NoopSpan) AsyncFinish() {}
