package xagent

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
)

// HeaderVersion 传播头协议版本
type HeaderVersion int

// V3 sw8 v3 协议，当前唯一支持的版本
const V3 HeaderVersion = 3

// 传播头名称
const (
	HeaderSW8         = "sw8"
	HeaderCorrelation = "sw8-correlation"
	HeaderExtension   = "sw8-x"
)

const (
	sw8FieldCount = 8
	// sw8 第 0 段为采样标志，存在即追踪，取值不被检查
	sw8SampleFlag = "1"
)

// CarrierFields ContextCarrier 的核心身份字段
type CarrierFields struct {
	TraceID               string
	SegmentID             string
	SpanID                int32
	ParentService         string
	ParentServiceInstance string
	ParentEndpoint        string
	AddressUsedAtClient   string
}

// ContextCarrier 跨进程传播信封
//
// 每次 inject 新建一个 carrier，由唯一一次 extract 消费。交给消费方之后不应再修改。
// 零值可用：关联与扩展数据在首次访问时创建，但推荐通过 NewContextCarrier 或 Manager.NewCarrier 创建。
type ContextCarrier struct {
	fields      CarrierFields
	correlation *xcorrelation.Context
	extension   *ExtensionContext
}

// NewContextCarrier 创建空 carrier，关联数据按 limits 约束
//
// 通常通过 Manager.NewCarrier 创建，以使用当前配置的上限。
func NewContextCarrier(limits xcorrelation.Limits) *ContextCarrier {
	return &ContextCarrier{
		fields:      CarrierFields{SpanID: -1},
		correlation: xcorrelation.New(limits),
		extension:   &ExtensionContext{},
	}
}

// Fields 返回核心身份字段副本
func (c *ContextCarrier) Fields() CarrierFields { return c.fields }

// SetFields 直接设置核心身份字段，用于工具与测试
func (c *ContextCarrier) SetFields(f CarrierFields) { c.fields = f }

// TraceID 返回上游 trace id
func (c *ContextCarrier) TraceID() string { return c.fields.TraceID }

// SegmentID 返回上游 segment id
func (c *ContextCarrier) SegmentID() string { return c.fields.SegmentID }

// SpanID 返回上游 span id，未设置时为 -1
func (c *ContextCarrier) SpanID() int32 { return c.fields.SpanID }

// Correlation 返回随 carrier 传播的关联数据
//
// 零值 carrier 首次访问时按默认上限创建。
func (c *ContextCarrier) Correlation() *xcorrelation.Context {
	if c.correlation == nil {
		c.correlation = xcorrelation.New(xcorrelation.DefaultLimits())
	}
	return c.correlation
}

// Extension 返回 sw8-x 扩展数据，零值 carrier 首次访问时创建
func (c *ContextCarrier) Extension() *ExtensionContext {
	if c.extension == nil {
		c.extension = &ExtensionContext{}
	}
	return c.extension
}

// ExtensionInjector 返回扩展数据注入器
func (c *ContextCarrier) ExtensionInjector() ExtensionInjector {
	return ExtensionInjector{ext: c.Extension()}
}

// IsValid 报告 carrier 是否可用于构建上游 ref
//
// 无效 carrier 表示"没有上游 trace"，不是错误。
func (c *ContextCarrier) IsValid(version HeaderVersion) bool {
	if c == nil || version != V3 {
		return false
	}
	f := c.fields
	return f.TraceID != "" &&
		f.SegmentID != "" &&
		f.SpanID >= 0 &&
		f.ParentService != "" &&
		f.ParentServiceInstance != "" &&
		f.ParentEndpoint != "" &&
		f.AddressUsedAtClient != ""
}

// Serialize 编码 sw8 头，carrier 无效时返回空串
func (c *ContextCarrier) Serialize(version HeaderVersion) string {
	if !c.IsValid(version) {
		return ""
	}
	f := c.fields
	return strings.Join([]string{
		sw8SampleFlag,
		encode(f.TraceID),
		encode(f.SegmentID),
		strconv.FormatInt(int64(f.SpanID), 10),
		encode(f.ParentService),
		encode(f.ParentServiceInstance),
		encode(f.ParentEndpoint),
		encode(f.AddressUsedAtClient),
	}, "-")
}

// Deserialize 解码 sw8 头
//
// 最多切分 8 段，段数不等于 8 时不做任何修改。单个字段解码失败时该字段保持未设置，
// 畸形输入最终表现为无效 carrier，从不报错。
func (c *ContextCarrier) Deserialize(text string, version HeaderVersion) {
	if version != V3 || text == "" {
		return
	}
	parts := strings.SplitN(text, "-", sw8FieldCount)
	if len(parts) != sw8FieldCount {
		return
	}
	decodeInto(&c.fields.TraceID, parts[1])
	decodeInto(&c.fields.SegmentID, parts[2])
	if id, err := strconv.ParseInt(parts[3], 10, 32); err == nil {
		c.fields.SpanID = int32(id)
	}
	decodeInto(&c.fields.ParentService, parts[4])
	decodeInto(&c.fields.ParentServiceInstance, parts[5])
	decodeInto(&c.fields.ParentEndpoint, parts[6])
	decodeInto(&c.fields.AddressUsedAtClient, parts[7])
}

func encode(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func decodeInto(dst *string, s string) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return
	}
	*dst = string(b)
}
