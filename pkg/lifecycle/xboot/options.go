package xboot

import (
	"os"
	"syscall"
	"time"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
)

// DefaultShutdownTimeout Run 结束后 Shutdown 阶段的默认超时
const DefaultShutdownTimeout = 10 * time.Second

// Option 配置 Services 与 Group
type Option func(*options)

type options struct {
	logger          xlog.Logger
	name            string
	signals         []os.Signal
	noSignalHandler bool
	shutdownTimeout time.Duration
}

func defaultOptions() *options {
	return &options{
		logger:          xlog.Default(),
		name:            "xboot",
		shutdownTimeout: DefaultShutdownTimeout,
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	o.logger = o.logger.With(xlog.Component(o.name))
	return o
}

// DefaultSignals 默认监听的终止信号
func DefaultSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	}
}

// WithLogger 设置生命周期日志，默认 xlog.Default()
func WithLogger(logger xlog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithName 设置日志中的组件名，默认 "xboot"
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithSignals 设置 Run 监听的信号，默认 DefaultSignals()
func WithSignals(signals ...os.Signal) Option {
	// 设计决策: 在创建时拷贝，避免调用方后续修改切片导致配置漂移。
	copied := append([]os.Signal(nil), signals...)
	return func(o *options) {
		o.signals = copied
	}
}

// WithoutSignalHandler 禁用信号监听，由调用方通过 ctx 控制退出
func WithoutSignalHandler() Option {
	return func(o *options) {
		o.noSignalHandler = true
	}
}

// WithShutdownTimeout 设置 Shutdown 阶段的超时，<= 0 表示不限时
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = d
	}
}
