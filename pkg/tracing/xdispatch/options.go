package xdispatch

import (
	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xmetrics"
)

const (
	// DefaultWorkers 默认 worker 数量
	DefaultWorkers = 1
	// DefaultQueueSize 默认队列容量
	DefaultQueueSize = 1024
)

type options struct {
	workers   int
	queueSize int
	logger    xlog.Logger
	recorder  xmetrics.Recorder
}

// Option Dispatcher 配置
type Option func(*options)

// WithWorkers 设置 worker 数量，小于 1 时忽略
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithQueueSize 设置队列容量，小于 1 时忽略
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithLogger 设置日志记录器，nil 被忽略，默认 xlog.Default()
func WithLogger(l xlog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRecorder 设置指标记录器，nil 被忽略
func WithRecorder(r xmetrics.Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

func defaultOptions() options {
	return options{
		workers:   DefaultWorkers,
		queueSize: DefaultQueueSize,
		recorder:  xmetrics.NoopRecorder{},
	}
}
