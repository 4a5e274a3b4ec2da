package xconf

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/observability/xsampling"
	"github.com/omeyang/xwalk/pkg/tracing/xagent"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/tracing/xdispatch"
)

// AgentConfig 追踪引擎的完整配置
type AgentConfig struct {
	Agent       AgentSection       `koanf:"agent"`
	Correlation CorrelationSection `koanf:"correlation"`
	Dispatch    DispatchSection    `koanf:"dispatch"`
	Logging     LoggingSection     `koanf:"logging"`
}

// AgentSection 服务身份、Span 上限与采样
type AgentSection struct {
	ServiceName         string `koanf:"service_name"`
	InstanceName        string `koanf:"instance_name"`
	SpanLimitPerSegment int    `koanf:"span_limit_per_segment"`

	// SampleRate 按比例采样，[0, 1]
	SampleRate float64 `koanf:"sample_rate"`
	// SampleNPerWindow > 0 时改为每个窗口最多采样 N 条 trace，SampleRate 被忽略
	SampleNPerWindow int           `koanf:"sample_n_per_window"`
	SampleWindow     time.Duration `koanf:"sample_window"`

	// ProfileEndpoints 需要性能剖析的入口端点
	ProfileEndpoints []string `koanf:"profile_endpoints"`
}

// CorrelationSection 关联数据上限
type CorrelationSection struct {
	ElementMaxNumber int      `koanf:"element_max_number"`
	ValueMaxLength   int      `koanf:"value_max_length"`
	AutoTagKeys      []string `koanf:"auto_tag_keys"`
}

// DispatchSection segment 投递队列
type DispatchSection struct {
	Workers   int `koanf:"workers"`
	QueueSize int `koanf:"queue_size"`
}

// LoggingSection 引擎日志，File 为空时输出到 stderr
type LoggingSection struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// DefaultConfig 返回默认配置，与 xagent.DefaultSettings 一致
func DefaultConfig() AgentConfig {
	s := xagent.DefaultSettings()
	return AgentConfig{
		Agent: AgentSection{
			ServiceName:         s.ServiceName,
			InstanceName:        s.InstanceName,
			SpanLimitPerSegment: s.SpanLimitPerSegment,
			SampleRate:          1,
			SampleWindow:        xsampling.DefaultWindow,
		},
		Correlation: CorrelationSection{
			ElementMaxNumber: s.Correlation.MaxElements,
			ValueMaxLength:   s.Correlation.MaxValueLength,
		},
		Dispatch: DispatchSection{
			Workers:   xdispatch.DefaultWorkers,
			QueueSize: xdispatch.DefaultQueueSize,
		},
		Logging: LoggingSection{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 校验全部字段，返回所有问题的合并错误
func (c AgentConfig) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	a := c.Agent
	check(a.ServiceName != "", "agent.service_name is required")
	check(a.InstanceName != "", "agent.instance_name is required")
	check(a.SpanLimitPerSegment > 0, "agent.span_limit_per_segment must be positive, got %d", a.SpanLimitPerSegment)
	check(a.SampleRate >= 0 && a.SampleRate <= 1, "agent.sample_rate must be in [0, 1], got %v", a.SampleRate)
	check(a.SampleNPerWindow >= 0, "agent.sample_n_per_window must not be negative, got %d", a.SampleNPerWindow)
	check(a.SampleNPerWindow == 0 || a.SampleWindow > 0, "agent.sample_window must be positive, got %s", a.SampleWindow)

	check(c.Correlation.ElementMaxNumber > 0, "correlation.element_max_number must be positive, got %d", c.Correlation.ElementMaxNumber)
	check(c.Correlation.ValueMaxLength > 0, "correlation.value_max_length must be positive, got %d", c.Correlation.ValueMaxLength)

	check(c.Dispatch.Workers > 0, "dispatch.workers must be positive, got %d", c.Dispatch.Workers)
	check(c.Dispatch.QueueSize > 0, "dispatch.queue_size must be positive, got %d", c.Dispatch.QueueSize)

	l := c.Logging
	_, levelErr := xlog.ParseLevel(l.Level)
	check(levelErr == nil, "logging.level %q is unknown", l.Level)
	check(l.Format == "" || l.Format == "text" || l.Format == "json", "logging.format %q is unknown", l.Format)
	check(l.MaxSizeMB >= 0 && l.MaxBackups >= 0 && l.MaxAgeDays >= 0, "logging rotation limits must not be negative")

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// =============================================================================
// 转换
// =============================================================================

// Settings 转换为引擎运行参数
func (c AgentConfig) Settings() xagent.Settings {
	return xagent.Settings{
		ServiceName:         c.Agent.ServiceName,
		InstanceName:        c.Agent.InstanceName,
		SpanLimitPerSegment: c.Agent.SpanLimitPerSegment,
		Correlation: xcorrelation.Limits{
			MaxElements:    c.Correlation.ElementMaxNumber,
			MaxValueLength: c.Correlation.ValueMaxLength,
			AutoTagKeys:    slices.Clone(c.Correlation.AutoTagKeys),
		},
	}
}

// Sampler 按配置构造采样器
//
// sample_n_per_window 优先；否则 sample_rate 为 1 时全采，为 0 时全不采。
func (c AgentConfig) Sampler() (xsampling.Sampler, error) {
	a := c.Agent
	switch {
	case a.SampleNPerWindow > 0:
		return xsampling.NewWindowSampler(a.SampleNPerWindow, a.SampleWindow)
	case a.SampleRate >= 1:
		return xsampling.Always(), nil
	case a.SampleRate <= 0:
		return xsampling.Never(), nil
	default:
		return xsampling.NewRateSampler(a.SampleRate)
	}
}

// ProfileMatcher 返回匹配 profile_endpoints 的函数，未配置时返回 nil
func (c AgentConfig) ProfileMatcher() xagent.ProfileMatcher {
	if len(c.Agent.ProfileEndpoints) == 0 {
		return nil
	}
	endpoints := make(map[string]struct{}, len(c.Agent.ProfileEndpoints))
	for _, ep := range c.Agent.ProfileEndpoints {
		endpoints[ep] = struct{}{}
	}
	return func(endpoint string) bool {
		_, ok := endpoints[endpoint]
		return ok
	}
}

// Build 按日志配置构造 Logger，附带 service/instance 属性
//
// 返回的 cleanup 关闭轮转文件。
func (l LoggingSection) Build(attrs ...slog.Attr) (xlog.LoggerWithLevel, func() error, error) {
	b := xlog.New().
		SetLevelString(l.Level).
		SetFormat(l.Format).
		SetAttrs(attrs...)
	if l.File != "" {
		b = b.SetRotation(l.File, xlog.Rotation{
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		})
	}
	return b.Build()
}

// Options 组合为 xagent.New 的选项
//
// logger 为 nil 时使用 xlog 的默认 Logger。
func (c AgentConfig) Options(logger xlog.Logger) ([]xagent.Option, error) {
	sampler, err := c.Sampler()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	opts := []xagent.Option{
		xagent.WithSettings(c.Settings()),
		xagent.WithSampler(sampler),
		xagent.WithDispatchOptions(
			xdispatch.WithWorkers(c.Dispatch.Workers),
			xdispatch.WithQueueSize(c.Dispatch.QueueSize),
		),
	}
	if m := c.ProfileMatcher(); m != nil {
		opts = append(opts, xagent.WithProfileMatcher(m))
	}
	if logger != nil {
		opts = append(opts, xagent.WithLogger(logger))
	}
	return opts, nil
}
