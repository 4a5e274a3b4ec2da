package xagent

import (
	"time"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
	"github.com/omeyang/xwalk/pkg/observability/xsampling"
	"github.com/omeyang/xwalk/pkg/tracing/xdispatch"
	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

type options struct {
	settings     Settings
	registry     *xtag.Registry
	ids          IDGenerator
	sampler      xsampling.Sampler
	listener     xdispatch.Listener
	dispatchOpts []xdispatch.Option
	recorder     xmetrics.Recorder
	logger       xlog.Logger
	matcher      ProfileMatcher
	now          func() time.Time
}

// Option Manager 配置选项
type Option func(*options)

func defaultOptions() options {
	return options{
		settings: DefaultSettings(),
		registry: xtag.Default(),
		sampler:  xsampling.Always(),
		recorder: xmetrics.NoopRecorder{},
		now:      time.Now,
	}
}

// WithSettings 设置初始运行参数
func WithSettings(s Settings) Option {
	return func(o *options) {
		o.settings = s
	}
}

// WithRegistry 设置标签注册表，nil 被忽略，默认 xtag.Default()
func WithRegistry(r *xtag.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.registry = r
		}
	}
}

// WithIDGenerator 设置 id 生成器，默认使用 xid.NewGenerator
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithSampler 设置新 trace 的采样策略，默认全采样
func WithSampler(s xsampling.Sampler) Option {
	return func(o *options) {
		if s != nil {
			o.sampler = s
		}
	}
}

// WithListener 设置定稿 segment 的接收方，经 xdispatch.Dispatcher 异步投递
func WithListener(l xdispatch.Listener) Option {
	return func(o *options) {
		o.listener = l
	}
}

// WithDispatchOptions 设置投递队列参数
func WithDispatchOptions(opts ...xdispatch.Option) Option {
	return func(o *options) {
		o.dispatchOpts = append(o.dispatchOpts, opts...)
	}
}

// WithRecorder 设置指标记录器
func WithRecorder(r xmetrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithLogger 设置日志记录器，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithProfileMatcher 设置剖析匹配函数，segment 首个 Span 的端点匹配时开始剖析
func WithProfileMatcher(fn ProfileMatcher) Option {
	return func(o *options) {
		o.matcher = fn
	}
}

// WithClock 设置时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
