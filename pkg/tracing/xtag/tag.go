package xtag

import (
	"sync"
	"sync/atomic"
)

// Tag 已驻留的标签，按 id 比较。
//
// 零值不是有效标签（id 为 0），Span 写入零值标签会被忽略。
type Tag struct {
	id  int
	key string
}

// ID 返回标签的数字 id
func (t Tag) ID() int { return t.id }

// Key 返回标签名称
func (t Tag) Key() string { return t.key }

// IsValid 报告标签是否经过驻留
func (t Tag) IsValid() bool { return t.id > 0 && t.key != "" }

// String 返回标签名称
func (t Tag) String() string { return t.key }

// 预定义标签。id 与线上协议的后端约定保持一致，不可重排。
var (
	URL                 = Tag{1, "url"}
	HTTPStatusCode      = Tag{2, "http.status_code"}
	DBType              = Tag{3, "db.type"}
	DBInstance          = Tag{4, "db.instance"}
	DBStatement         = Tag{5, "db.statement"}
	DBBindVariables     = Tag{6, "db.bind_vars"}
	MQQueue             = Tag{7, "mq.queue"}
	MQBroker            = Tag{8, "mq.broker"}
	MQTopic             = Tag{9, "mq.topic"}
	HTTPMethod          = Tag{10, "http.method"}
	HTTPParams          = Tag{11, "http.params"}
	LogicEndpoint       = Tag{12, "x-le"}
	HTTPBody            = Tag{13, "http.body"}
	HTTPHeaders         = Tag{14, "http.headers"}
	TransmissionLatency = Tag{15, "transmission.latency"}
	MQStatus            = Tag{16, "mq_status"}
	MybatisMapper       = Tag{17, "mybatis.mapper"}
	RPCStatusCode       = Tag{18, "rpc.status_code"}
	SQLParameters       = Tag{19, "db.sql.parameters"}
	CacheInstance       = Tag{20, "cache.instance"}
	LockName            = Tag{21, "lock.name"}
	LeaseTime           = Tag{22, "lease.time"}
	ThreadID            = Tag{23, "thread.id"}
	CacheType           = Tag{24, "cache.type"}
	CacheOp             = Tag{25, "cache.op"}
	CacheCmd            = Tag{26, "cache.cmd"}
	CacheKey            = Tag{27, "cache.key"}
)

// MaxPredefinedID 预定义标签占用的最大 id
const MaxPredefinedID = 27

// Predefined 返回全部预定义标签，按 id 升序
func Predefined() []Tag {
	return []Tag{
		URL, HTTPStatusCode, DBType, DBInstance, DBStatement, DBBindVariables,
		MQQueue, MQBroker, MQTopic, HTTPMethod, HTTPParams, LogicEndpoint,
		HTTPBody, HTTPHeaders, TransmissionLatency, MQStatus, MybatisMapper,
		RPCStatusCode, SQLParameters, CacheInstance, LockName, LeaseTime,
		ThreadID, CacheType, CacheOp, CacheCmd, CacheKey,
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry 并发安全的标签驻留表
//
// 读路径（已驻留的 key）只有一次 sync.Map 查找，无锁。
// 新 key 的 id 由原子计数器分配，LoadOrStore 保证同一 key 只有一个 id 生效；
// 竞争失败者分配到的 id 被丢弃，id 空洞不影响语义。
type Registry struct {
	byKey sync.Map // string -> Tag
	byID  sync.Map // int -> Tag
	next  atomic.Int64
}

// NewRegistry 创建包含全部预定义标签的注册表
func NewRegistry() *Registry {
	r := &Registry{}
	for _, t := range Predefined() {
		r.byKey.Store(t.key, t)
		r.byID.Store(t.id, t)
	}
	r.next.Store(MaxPredefinedID)
	return r
}

// OfKey 返回 key 对应的驻留标签，不存在时分配新 id
//
// 空 key 返回零值 Tag。
func (r *Registry) OfKey(key string) Tag {
	if key == "" {
		return Tag{}
	}
	if v, ok := r.byKey.Load(key); ok {
		return asTag(v)
	}
	t := Tag{id: int(r.next.Add(1)), key: key}
	actual, loaded := r.byKey.LoadOrStore(key, t)
	if loaded {
		return asTag(actual)
	}
	r.byID.Store(t.id, t)
	return t
}

// ByID 按 id 查找已驻留的标签
func (r *Registry) ByID(id int) (Tag, bool) {
	v, ok := r.byID.Load(id)
	if !ok {
		return Tag{}, false
	}
	return asTag(v), true
}

// Lookup 查找已驻留的标签，不分配新 id
func (r *Registry) Lookup(key string) (Tag, bool) {
	v, ok := r.byKey.Load(key)
	if !ok {
		return Tag{}, false
	}
	return asTag(v), true
}

// asTag byKey/byID 只存放 Tag
func asTag(v any) Tag {
	t, _ := v.(Tag)
	return t
}

// defaultRegistry 进程默认注册表
var defaultRegistry = NewRegistry()

// Default 返回进程默认注册表
func Default() *Registry { return defaultRegistry }

// OfKey 在默认注册表中驻留 key
func OfKey(key string) Tag { return defaultRegistry.OfKey(key) }
