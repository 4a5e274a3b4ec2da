package xspan

// RefType 因果边的来源
type RefType int

const (
	// RefCrossProcess 由入站 carrier 构建，可携带客户端观测到的地址
	RefCrossProcess RefType = iota
	// RefCrossThread 由进程内快照构建，不携带地址
	RefCrossThread
)

// String 返回 RefType 的线上名称
func (t RefType) String() string {
	if t == RefCrossThread {
		return "CrossThread"
	}
	return "CrossProcess"
}

// RefKey SegmentRef 的身份：只由父 segment id 与父 span id 决定
type RefKey struct {
	ParentSegmentID string
	ParentSpanID    int32
}

// SegmentRef 指向上游父 Span 的不可变因果边
//
// 相等性只看 (ParentSegmentID, ParentSpanID)：指向同一上游 Span 的两条 ref
// 是同一条边，其余描述字段不同也视为相等。需要作为 map key 时使用 Key()。
type SegmentRef struct {
	refType               RefType
	traceID               string
	parentSegmentID       string
	parentSpanID          int32
	parentService         string
	parentServiceInstance string
	parentEndpoint        string
	addressUsedAtClient   string
}

// ProcessRef 跨进程 ref 的构造参数，取自已校验的 carrier
type ProcessRef struct {
	TraceID               string
	ParentSegmentID       string
	ParentSpanID          int32
	ParentService         string
	ParentServiceInstance string
	ParentEndpoint        string
	AddressUsedAtClient   string
}

// ThreadRef 跨线程 ref 的构造参数，取自快照
type ThreadRef struct {
	TraceID         string
	ParentSegmentID string
	ParentSpanID    int32
	ParentEndpoint  string
}

// NewCrossProcessRef 构建跨进程 ref
func NewCrossProcessRef(p ProcessRef) SegmentRef {
	return SegmentRef{
		refType:               RefCrossProcess,
		traceID:               p.TraceID,
		parentSegmentID:       p.ParentSegmentID,
		parentSpanID:          p.ParentSpanID,
		parentService:         p.ParentService,
		parentServiceInstance: p.ParentServiceInstance,
		parentEndpoint:        p.ParentEndpoint,
		addressUsedAtClient:   p.AddressUsedAtClient,
	}
}

// NewCrossThreadRef 构建跨线程 ref
//
// 同进程内的父服务与实例即本进程的身份，由调用方传入。
func NewCrossThreadRef(p ThreadRef, service, instance string) SegmentRef {
	return SegmentRef{
		refType:               RefCrossThread,
		traceID:               p.TraceID,
		parentSegmentID:       p.ParentSegmentID,
		parentSpanID:          p.ParentSpanID,
		parentService:         service,
		parentServiceInstance: instance,
		parentEndpoint:        p.ParentEndpoint,
	}
}

// Type 返回 ref 来源
func (r SegmentRef) Type() RefType { return r.refType }

// TraceID 返回上游 trace id
func (r SegmentRef) TraceID() string { return r.traceID }

// ParentSegmentID 返回父 segment id
func (r SegmentRef) ParentSegmentID() string { return r.parentSegmentID }

// ParentSpanID 返回父 span id
func (r SegmentRef) ParentSpanID() int32 { return r.parentSpanID }

// ParentEndpoint 返回父端点名
func (r SegmentRef) ParentEndpoint() string { return r.parentEndpoint }

// AddressUsedAtClient 返回客户端观测到的地址，跨线程 ref 恒为空
func (r SegmentRef) AddressUsedAtClient() string { return r.addressUsedAtClient }

// Key 返回 ref 的身份
func (r SegmentRef) Key() RefKey {
	return RefKey{ParentSegmentID: r.parentSegmentID, ParentSpanID: r.parentSpanID}
}

// Equal 按 (ParentSegmentID, ParentSpanID) 比较
func (r SegmentRef) Equal(o SegmentRef) bool {
	return r.Key() == o.Key()
}

// RefObject SegmentRef 的外发线上形态
type RefObject struct {
	RefType                  string `json:"refType"`
	TraceID                  string `json:"traceId"`
	ParentTraceSegmentID     string `json:"parentTraceSegmentId"`
	ParentSpanID             int32  `json:"parentSpanId"`
	ParentService            string `json:"parentService"`
	ParentServiceInstance    string `json:"parentServiceInstance"`
	ParentEndpoint           string `json:"parentEndpoint"`
	NetworkAddressUsedAtPeer string `json:"networkAddressUsedAtPeer,omitempty"`
}

// Transform 映射为外发线上形态
func (r SegmentRef) Transform() RefObject {
	obj := RefObject{
		RefType:               r.refType.String(),
		TraceID:               r.traceID,
		ParentTraceSegmentID:  r.parentSegmentID,
		ParentSpanID:          r.parentSpanID,
		ParentService:         r.parentService,
		ParentServiceInstance: r.parentServiceInstance,
		ParentEndpoint:        r.parentEndpoint,
	}
	if r.refType == RefCrossProcess {
		obj.NetworkAddressUsedAtPeer = r.addressUsedAtClient
	}
	return obj
}

// refSet 按身份去重的有序 ref 集合
type refSet struct {
	refs []SegmentRef
}

// add 追加 ref，已存在同一身份时返回 false
func (s *refSet) add(r SegmentRef) bool {
	for _, existing := range s.refs {
		if existing.Equal(r) {
			return false
		}
	}
	s.refs = append(s.refs, r)
	return true
}

func (s *refSet) transform() []RefObject {
	if len(s.refs) == 0 {
		return nil
	}
	out := make([]RefObject, len(s.refs))
	for i, r := range s.refs {
		out[i] = r.Transform()
	}
	return out
}
