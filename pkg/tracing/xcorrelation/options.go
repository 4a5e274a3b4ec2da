package xcorrelation

import "github.com/omeyang/xwalk/pkg/tracing/xtag"

const (
	// DefaultMaxElements 默认元素数量上限
	DefaultMaxElements = 3

	// DefaultMaxValueLength 默认值长度上限（rune 数）
	DefaultMaxValueLength = 128

	// defaultShardCount 默认分片数，必须是 2 的幂
	defaultShardCount = 8
)

// Limits 进程范围的关联数据上限，由外部配置提供
type Limits struct {
	// MaxElements 元素数量上限，<= 0 时使用 DefaultMaxElements
	MaxElements int

	// MaxValueLength 值长度上限（rune 数），<= 0 时使用 DefaultMaxValueLength
	MaxValueLength int

	// AutoTagKeys 需要镜像为 Span 标签的 key 列表
	AutoTagKeys []string
}

// DefaultLimits 返回默认上限
func DefaultLimits() Limits {
	return Limits{
		MaxElements:    DefaultMaxElements,
		MaxValueLength: DefaultMaxValueLength,
	}
}

func (l Limits) normalized() Limits {
	if l.MaxElements <= 0 {
		l.MaxElements = DefaultMaxElements
	}
	if l.MaxValueLength <= 0 {
		l.MaxValueLength = DefaultMaxValueLength
	}
	return l
}

// TagSink 接收自动标签镜像的目标，通常是活跃 Span
type TagSink interface {
	Tag(tag xtag.Tag, value string)
}

// ActiveSpanFunc 返回当前活跃 Span，没有活跃 Span 时返回 nil
type ActiveSpanFunc func() TagSink

type options struct {
	registry   *xtag.Registry
	activeSpan ActiveSpanFunc
	shardCount int
}

// Option 关联数据配置选项
type Option func(*options)

// WithRegistry 指定自动标签解析使用的标签注册表，默认 xtag.Default()
func WithRegistry(r *xtag.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithActiveSpan 指定活跃 Span 的获取方式，用于自动标签镜像
//
// 未设置时 Put 不会产生任何标签。
func WithActiveSpan(fn ActiveSpanFunc) Option {
	return func(o *options) {
		o.activeSpan = fn
	}
}

// WithShardCount 设置分片数，非 2 的幂时向上取整
func WithShardCount(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.shardCount = nextPowerOfTwo(n)
		}
	}
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
