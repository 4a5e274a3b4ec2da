package xagent

import (
	"fmt"

	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
)

// DefaultSpanLimitPerSegment 单个 segment 默认最多记录的 Span 数
const DefaultSpanLimitPerSegment = 300

// Settings 引擎运行参数，由外部身份/配置提供方给出
//
// 新建的 TracingContext 取用当时的 Settings 快照，已存在的上下文不受后续更新影响。
type Settings struct {
	// ServiceName 本服务名，写入 carrier 的 parentService
	ServiceName string
	// InstanceName 本服务实例名，写入 carrier 的 parentServiceInstance
	InstanceName string
	// SpanLimitPerSegment 超过后新建的 Span 退化为 NoopSpan
	SpanLimitPerSegment int
	// Correlation 关联数据上限与自动标签
	Correlation xcorrelation.Limits
}

// DefaultSettings 返回默认配置
func DefaultSettings() Settings {
	return Settings{
		ServiceName:         "unknown-service",
		InstanceName:        "unknown-instance",
		SpanLimitPerSegment: DefaultSpanLimitPerSegment,
		Correlation:         xcorrelation.DefaultLimits(),
	}
}

// Validate 校验配置
func (s Settings) Validate() error {
	switch {
	case s.ServiceName == "":
		return fmt.Errorf("%w: service name is required", ErrInvalidSettings)
	case s.InstanceName == "":
		return fmt.Errorf("%w: instance name is required", ErrInvalidSettings)
	case s.SpanLimitPerSegment <= 0:
		return fmt.Errorf("%w: span limit must be positive, got %d", ErrInvalidSettings, s.SpanLimitPerSegment)
	}
	return nil
}
