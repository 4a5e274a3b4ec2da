package xagent

import (
	"strconv"
	"strings"
	"time"

	"github.com/omeyang/xwalk/pkg/tracing/xspan"
	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

// ExtensionContext sw8-x 扩展数据
//
// 线上格式为 "<skipAnalysis 0|1>-<发送时间戳毫秒，可为空>"。
type ExtensionContext struct {
	skipAnalysis     bool
	sendingTimestamp int64 // 0 表示未设置
}

// SkipAnalysis 报告是否要求后端跳过分析
func (e *ExtensionContext) SkipAnalysis() bool { return e.skipAnalysis }

// SetSkipAnalysis 设置跳过分析标志
func (e *ExtensionContext) SetSkipAnalysis(skip bool) { e.skipAnalysis = skip }

// SendingTimestamp 返回上游发送时间戳（毫秒）
func (e *ExtensionContext) SendingTimestamp() (int64, bool) {
	return e.sendingTimestamp, e.sendingTimestamp > 0
}

// Serialize 编码 sw8-x 头
func (e *ExtensionContext) Serialize() string {
	var b strings.Builder
	if e.skipAnalysis {
		b.WriteString("1")
	} else {
		b.WriteString("0")
	}
	b.WriteByte('-')
	if e.sendingTimestamp > 0 {
		b.WriteString(strconv.FormatInt(e.sendingTimestamp, 10))
	}
	return b.String()
}

// Deserialize 解码 sw8-x 头，无法识别的字段被忽略
func (e *ExtensionContext) Deserialize(text string) {
	parts := strings.Split(text, "-")
	if len(parts) > 0 {
		e.skipAnalysis = parts[0] == "1"
	}
	if len(parts) > 1 && parts[1] != "" {
		if ts, err := strconv.ParseInt(parts[1], 10, 64); err == nil && ts > 0 {
			e.sendingTimestamp = ts
		}
	}
}

// inject 只向下游传播跳过分析标志，时间戳由 ExtensionInjector 显式写入
func (e *ExtensionContext) inject(c *ContextCarrier) {
	c.Extension().skipAnalysis = e.skipAnalysis
}

func (e *ExtensionContext) extract(c *ContextCarrier) {
	ext := c.Extension()
	e.skipAnalysis = ext.skipAnalysis
	e.sendingTimestamp = ext.sendingTimestamp
}

// handle 将扩展数据应用到接收方的活跃 Span
func (e *ExtensionContext) handle(span xspan.Span, now time.Time) {
	if span == nil {
		return
	}
	if e.skipAnalysis {
		span.SkipAnalysis()
	}
	if e.sendingTimestamp > 0 {
		latency := now.UnixMilli() - e.sendingTimestamp
		span.Tag(xtag.TransmissionLatency, strconv.FormatInt(latency, 10))
	}
}

func (e *ExtensionContext) clone() *ExtensionContext {
	c := *e
	return &c
}

// ExtensionInjector 向 carrier 写入可选扩展数据
type ExtensionInjector struct {
	ext *ExtensionContext
}

// InjectSendingTimestamp 写入当前时间作为发送时间戳，下游据此计算传输延迟
func (i ExtensionInjector) InjectSendingTimestamp() {
	i.ext.sendingTimestamp = time.Now().UnixMilli()
}
