package xcorrelation

import (
	"encoding/base64"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

const (
	pairSeparator = ","
	kvSeparator   = ":"
)

// policy 构造后不可变，克隆之间共享
type policy struct {
	limits   Limits
	autoTags map[string]xtag.Tag
	// autoOrder 保持 AutoTagKeys 的配置顺序，Handle 按此顺序打标签
	autoOrder []string
}

type entry struct {
	value string
	seq   uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[string]entry
}

// Context 有界的关联数据表
//
// 零值不可用，使用 New 创建。
type Context struct {
	policy     *policy
	activeSpan ActiveSpanFunc
	shards     []shard
	mask       uint64
	count      atomic.Int64
	seq        atomic.Uint64
}

// New 创建关联数据表
func New(limits Limits, opts ...Option) *Context {
	o := &options{
		registry:   xtag.Default(),
		shardCount: defaultShardCount,
	}
	for _, opt := range opts {
		opt(o)
	}

	limits = limits.normalized()
	p := &policy{
		limits:   limits,
		autoTags: make(map[string]xtag.Tag, len(limits.AutoTagKeys)),
	}
	for _, k := range limits.AutoTagKeys {
		if k == "" {
			continue
		}
		if _, dup := p.autoTags[k]; dup {
			continue
		}
		p.autoTags[k] = o.registry.OfKey(k)
		p.autoOrder = append(p.autoOrder, k)
	}
	p.limits.AutoTagKeys = slices.Clone(p.autoOrder)

	return newWithPolicy(p, o.activeSpan, o.shardCount)
}

func newWithPolicy(p *policy, activeSpan ActiveSpanFunc, shardCount int) *Context {
	shards := make([]shard, shardCount)
	for i := range shards {
		shards[i].entries = make(map[string]entry)
	}
	return &Context{
		policy:     p,
		activeSpan: activeSpan,
		shards:     shards,
		mask:       uint64(shardCount - 1), //nolint:gosec // shardCount 为正的 2 的幂
	}
}

// Limits 返回生效的上限
func (c *Context) Limits() Limits {
	l := c.policy.limits
	l.AutoTagKeys = slices.Clone(l.AutoTagKeys)
	return l
}

func (c *Context) shardFor(key string) *shard {
	return &c.shards[xxhash.Sum64String(key)&c.mask]
}

// reserve 使用 CAS 预留一个元素名额，避免跨分片并发突破上限
func (c *Context) reserve() bool {
	limit := int64(c.policy.limits.MaxElements)
	for {
		cur := c.count.Load()
		if cur >= limit {
			return false
		}
		if c.count.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Put 写入关联数据并返回旧值
//
// 规则依次为：
//   - key 为空：不修改，返回 ErrEmptyKey
//   - value 为空：删除 key，返回旧值
//   - value 超长：拒绝，返回 ErrValueTooLong
//   - key 已存在：无条件覆盖（不受数量上限约束），返回旧值
//   - 新 key 已达数量上限：拒绝，返回 ErrTooManyElements
//
// 新插入的自动标签 key 在存在活跃 Span 时镜像为标签。
func (c *Context) Put(key, value string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}
	if value == "" {
		prev, _ := c.Remove(key)
		return prev, nil
	}
	if utf8.RuneCountInString(value) > c.policy.limits.MaxValueLength {
		return "", ErrValueTooLong
	}

	inserted, prev, err := c.store(key, value)
	if err != nil {
		return "", err
	}
	if inserted {
		c.mirror(key, value)
	}
	return prev, nil
}

// store 在分片锁内完成覆盖或插入，返回是否为新插入
func (c *Context) store(key, value string) (bool, string, error) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[key]; ok {
		s.entries[key] = entry{value: value, seq: old.seq}
		return false, old.value, nil
	}
	if !c.reserve() {
		return false, "", ErrTooManyElements
	}
	s.entries[key] = entry{value: value, seq: c.seq.Add(1)}
	return true, "", nil
}

// mirror 自动标签镜像，在分片锁外执行，避免持锁回调 Span
func (c *Context) mirror(key, value string) {
	tag, ok := c.policy.autoTags[key]
	if !ok || c.activeSpan == nil {
		return
	}
	if span := c.activeSpan(); span != nil {
		span.Tag(tag, value)
	}
}

// Get 读取关联数据，不存在时返回空串与 false
func (c *Context) Get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s := c.shardFor(key)
	s.mu.Lock()
	e, ok := s.entries[key]
	s.mu.Unlock()
	return e.value, ok
}

// Remove 删除 key 并返回旧值
func (c *Context) Remove(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	delete(s.entries, key)
	c.count.Add(-1)
	return e.value, true
}

// Len 返回当前元素数量
func (c *Context) Len() int {
	return int(c.count.Load())
}

type kv struct {
	key   string
	value string
	seq   uint64
}

// snapshot 逐分片复制全部条目并按插入顺序排序
func (c *Context) snapshot() []kv {
	out := make([]kv, 0, c.Len())
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, e := range s.entries {
			out = append(out, kv{key: k, value: e.value, seq: e.seq})
		}
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b kv) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
	return out
}

// Range 按插入顺序遍历条目，fn 返回 false 时停止
func (c *Context) Range(fn func(key, value string) bool) {
	for _, e := range c.snapshot() {
		if !fn(e.key, e.value) {
			return
		}
	}
}

// Serialize 编码为 sw8-correlation 头的值，空表返回空串
func (c *Context) Serialize() string {
	entries := c.snapshot()
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString(pairSeparator)
		}
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(e.key)))
		b.WriteString(kvSeparator)
		b.WriteString(base64.StdEncoding.EncodeToString([]byte(e.value)))
	}
	return b.String()
}

// Deserialize 解析 sw8-correlation 头的值并合并进当前表
//
// 达到数量上限后停止接收；不能恰好拆成两段的条目、base64 解码失败的条目、
// 空 key/空值以及超长值被跳过。畸形输入只会导致数据缺失，不会返回错误。
func (c *Context) Deserialize(text string) {
	if text == "" {
		return
	}
	for pair := range strings.SplitSeq(text, pairSeparator) {
		if c.Len() >= c.policy.limits.MaxElements {
			return
		}
		parts := strings.Split(pair, kvSeparator)
		if len(parts) != 2 {
			continue
		}
		key, err := base64.StdEncoding.DecodeString(parts[0])
		if err != nil {
			continue
		}
		value, err := base64.StdEncoding.DecodeString(parts[1])
		if err != nil {
			continue
		}
		c.accept(string(key), string(value))
	}
}

// accept 合并一条外来数据：不触发自动标签镜像，由 Handle 统一补打
func (c *Context) accept(key, value string) {
	if key == "" || value == "" {
		return
	}
	if utf8.RuneCountInString(value) > c.policy.limits.MaxValueLength {
		return
	}
	_, _, _ = c.store(key, value)
}

// Merge 将 src 的全部条目合并进当前表
//
// 已存在的 key 覆盖，新 key 仍受当前表的数量上限约束。
func (c *Context) Merge(src *Context) {
	if src == nil || src == c {
		return
	}
	for _, e := range src.snapshot() {
		c.accept(e.key, e.value)
	}
}

// Clone 值复制，克隆结果共享上限配置但不绑定活跃 Span
func (c *Context) Clone() *Context {
	dst := newWithPolicy(c.policy, nil, len(c.shards))
	for _, e := range c.snapshot() {
		_, _, _ = dst.store(e.key, e.value)
	}
	return dst
}

// Handle 将当前存在的自动标签 key 全部打到 span 上
//
// 用于跨进程提取与跨线程延续之后，对接收方的活跃 Span 重新应用镜像。
func (c *Context) Handle(span TagSink) {
	if span == nil {
		return
	}
	for _, k := range c.policy.autoOrder {
		if v, ok := c.Get(k); ok {
			span.Tag(c.policy.autoTags[k], v)
		}
	}
}
