package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xwalk/pkg/tracing/xagent"
	"github.com/omeyang/xwalk/pkg/tracing/xcorrelation"
	"github.com/omeyang/xwalk/pkg/util/xjson"
)

// usageError 表示参数错误，映射到退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitError 表示需要非零退出码但已完成输出的场景。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return "" }

// errMissingFields encode 缺少字段
var errMissingFields = errors.New("carrier 字段不完整")

// 创建所有子命令。
func createCommands() []*cli.Command {
	return []*cli.Command{
		createDecodeCommand(),
		createEncodeCommand(),
		createCorrelationCommand(),
		createExtensionCommand(),
	}
}

// =============================================================================
// 输出视图
// =============================================================================

type carrierView struct {
	TraceID               string         `json:"trace_id"`
	SegmentID             string         `json:"segment_id"`
	SpanID                int32          `json:"span_id"`
	ParentService         string         `json:"parent_service"`
	ParentServiceInstance string         `json:"parent_service_instance"`
	ParentEndpoint        string         `json:"parent_endpoint"`
	AddressUsedAtClient   string         `json:"address_used_at_client"`
	Valid                 bool           `json:"valid"`
	Correlation           []entryView    `json:"correlation,omitempty"`
	Extension             *extensionView `json:"extension,omitempty"`
}

type entryView struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type extensionView struct {
	SkipAnalysis     bool   `json:"skip_analysis"`
	SendingTimestamp int64  `json:"sending_timestamp,omitempty"`
	SendingTime      string `json:"sending_time,omitempty"`
}

func newCarrierView(c *xagent.ContextCarrier) carrierView {
	f := c.Fields()
	return carrierView{
		TraceID:               f.TraceID,
		SegmentID:             f.SegmentID,
		SpanID:                f.SpanID,
		ParentService:         f.ParentService,
		ParentServiceInstance: f.ParentServiceInstance,
		ParentEndpoint:        f.ParentEndpoint,
		AddressUsedAtClient:   f.AddressUsedAtClient,
		Valid:                 c.IsValid(xagent.V3),
	}
}

func newEntryViews(c *xcorrelation.Context) []entryView {
	var out []entryView
	c.Range(func(k, v string) bool {
		out = append(out, entryView{Key: k, Value: v})
		return true
	})
	return out
}

func newExtensionView(e *xagent.ExtensionContext) *extensionView {
	v := &extensionView{SkipAnalysis: e.SkipAnalysis()}
	if ts, ok := e.SendingTimestamp(); ok {
		v.SendingTimestamp = ts
		v.SendingTime = time.UnixMilli(ts).UTC().Format(time.RFC3339Nano)
	}
	return v
}

// printer 按全局 --json 选择输出格式。
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(cmd *cli.Command) printer {
	return printer{w: cmd.Root().Writer, json: cmd.Bool("json")}
}

// table 以两列对齐的纯文本输出。
func (p printer) table(rows [][2]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\n", r[0], r[1])
	}
	return tw.Flush()
}

func (p printer) carrier(v carrierView) error {
	if p.json {
		return xjson.Write(p.w, v)
	}
	rows := [][2]string{
		{"trace_id", v.TraceID},
		{"segment_id", v.SegmentID},
		{"span_id", fmt.Sprint(v.SpanID)},
		{"parent_service", v.ParentService},
		{"parent_instance", v.ParentServiceInstance},
		{"parent_endpoint", v.ParentEndpoint},
		{"peer", v.AddressUsedAtClient},
		{"valid", fmt.Sprint(v.Valid)},
	}
	for _, e := range v.Correlation {
		rows = append(rows, [2]string{"correlation." + e.Key, e.Value})
	}
	if v.Extension != nil {
		rows = append(rows, extensionRows(v.Extension)...)
	}
	return p.table(rows)
}

func (p printer) entries(entries []entryView) error {
	if p.json {
		if entries == nil {
			entries = []entryView{}
		}
		return xjson.Write(p.w, entries)
	}
	rows := make([][2]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, [2]string{e.Key, e.Value})
	}
	return p.table(rows)
}

func (p printer) extension(v *extensionView) error {
	if p.json {
		return xjson.Write(p.w, v)
	}
	return p.table(extensionRows(v))
}

func extensionRows(v *extensionView) [][2]string {
	rows := [][2]string{{"skip_analysis", fmt.Sprint(v.SkipAnalysis)}}
	if v.SendingTimestamp > 0 {
		rows = append(rows,
			[2]string{"sending_timestamp", fmt.Sprint(v.SendingTimestamp)},
			[2]string{"sending_time", v.SendingTime},
		)
	}
	return rows
}

// value 输出单个编码结果。
func (p printer) value(header, v string) error {
	if p.json {
		return xjson.Write(p.w, map[string]string{header: v})
	}
	_, err := fmt.Fprintln(p.w, v)
	return err
}

// =============================================================================
// decode / encode
// =============================================================================

// headerValue 取第一个位置参数，兼容直接粘贴的 "sw8: xxx" 形式。
func headerValue(cmd *cli.Command, header string) (string, error) {
	if cmd.Args().Len() != 1 {
		return "", usagef("需要且只需要一个 %s 值", header)
	}
	return trimHeaderName(cmd.Args().First(), header), nil
}

func trimHeaderName(s, header string) string {
	s = strings.TrimSpace(s)
	if len(s) > len(header) && strings.EqualFold(s[:len(header)], header) {
		rest := s[len(header):]
		if rest[0] == ':' || rest[0] == '=' {
			return strings.TrimSpace(rest[1:])
		}
	}
	return s
}

// limitsFrom 从 --max-elements / --max-value-length 构造上限，未设置时取默认值。
func limitsFrom(cmd *cli.Command) xcorrelation.Limits {
	return xcorrelation.Limits{
		MaxElements:    cmd.Int("max-elements"),
		MaxValueLength: cmd.Int("max-value-length"),
	}
}

func limitFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "max-elements",
			Usage: "关联数据元素数量上限",
			Value: xcorrelation.DefaultMaxElements,
		},
		&cli.IntFlag{
			Name:  "max-value-length",
			Usage: "关联数据值长度上限（rune 数）",
			Value: xcorrelation.DefaultMaxValueLength,
		},
	}
}

// createDecodeCommand 创建 decode 子命令。
func createDecodeCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "correlation",
			Aliases: []string{"c"},
			Usage:   "同时解码的 sw8-correlation 头",
		},
		&cli.StringFlag{
			Name:    "extension",
			Aliases: []string{"x"},
			Usage:   "同时解码的 sw8-x 头",
		},
	}, limitFlags()...)
	return &cli.Command{
		Name:      "decode",
		Aliases:   []string{"d"},
		Usage:     "解码 sw8 头",
		ArgsUsage: "<sw8>",
		Flags:     flags,
		Action: func(_ context.Context, cmd *cli.Command) error {
			value, err := headerValue(cmd, xagent.HeaderSW8)
			if err != nil {
				return err
			}
			return cmdDecode(newPrinter(cmd), value,
				cmd.String("correlation"), cmd.String("extension"), limitsFrom(cmd))
		},
	}
}

// cmdDecode 解码并输出 carrier。carrier 无效时仍输出已解出的字段，退出码为 1。
func cmdDecode(p printer, sw8, correlation, extension string, limits xcorrelation.Limits) error {
	carrier := xagent.NewContextCarrier(limits)
	carrier.Deserialize(sw8, xagent.V3)
	view := newCarrierView(carrier)

	if correlation != "" {
		corr := carrier.Correlation()
		corr.Deserialize(trimHeaderName(correlation, xagent.HeaderCorrelation))
		view.Correlation = newEntryViews(corr)
	}
	if extension != "" {
		ext := carrier.Extension()
		ext.Deserialize(trimHeaderName(extension, xagent.HeaderExtension))
		view.Extension = newExtensionView(ext)
	}

	if err := p.carrier(view); err != nil {
		return err
	}
	if !view.Valid {
		return &exitError{code: 1}
	}
	return nil
}

// createEncodeCommand 创建 encode 子命令。
func createEncodeCommand() *cli.Command {
	return &cli.Command{
		Name:    "encode",
		Aliases: []string{"e"},
		Usage:   "由各字段构造 sw8 头",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "trace-id", Aliases: []string{"t"}, Usage: "全局 trace id"},
			&cli.StringFlag{Name: "segment-id", Aliases: []string{"s"}, Usage: "上游 segment id"},
			&cli.IntFlag{Name: "span-id", Usage: "上游 exit span id"},
			&cli.StringFlag{Name: "service", Usage: "上游服务名"},
			&cli.StringFlag{Name: "instance", Usage: "上游服务实例名"},
			&cli.StringFlag{Name: "endpoint", Usage: "上游入口端点"},
			&cli.StringFlag{Name: "address", Aliases: []string{"peer"}, Usage: "客户端使用的目标地址"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			spanID := cmd.Int("span-id")
			if spanID < 0 || spanID > math.MaxInt32 {
				return usagef("--span-id 超出范围: %d", spanID)
			}
			fields := xagent.CarrierFields{
				TraceID:               cmd.String("trace-id"),
				SegmentID:             cmd.String("segment-id"),
				SpanID:                int32(spanID),
				ParentService:         cmd.String("service"),
				ParentServiceInstance: cmd.String("instance"),
				ParentEndpoint:        cmd.String("endpoint"),
				AddressUsedAtClient:   cmd.String("address"),
			}
			return cmdEncode(newPrinter(cmd), fields)
		},
	}
}

func cmdEncode(p printer, fields xagent.CarrierFields) error {
	carrier := xagent.NewContextCarrier(xcorrelation.DefaultLimits())
	carrier.SetFields(fields)
	value := carrier.Serialize(xagent.V3)
	if value == "" {
		return &usageError{err: fmt.Errorf("%w，缺少: %s", errMissingFields, strings.Join(missingFields(fields), ", "))}
	}
	return p.value(xagent.HeaderSW8, value)
}

func missingFields(f xagent.CarrierFields) []string {
	var missing []string
	for _, c := range []struct {
		flag  string
		value string
	}{
		{"--trace-id", f.TraceID},
		{"--segment-id", f.SegmentID},
		{"--service", f.ParentService},
		{"--instance", f.ParentServiceInstance},
		{"--endpoint", f.ParentEndpoint},
		{"--address", f.AddressUsedAtClient},
	} {
		if c.value == "" {
			missing = append(missing, c.flag)
		}
	}
	return missing
}

// =============================================================================
// correlation / extension
// =============================================================================

// createCorrelationCommand 创建 correlation 子命令组。
func createCorrelationCommand() *cli.Command {
	return &cli.Command{
		Name:    "correlation",
		Aliases: []string{"c"},
		Usage:   "sw8-correlation 头编解码",
		Flags:   limitFlags(),
		Commands: []*cli.Command{
			{
				Name:      "decode",
				Usage:     "解码 sw8-correlation 头",
				ArgsUsage: "<value>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					value, err := headerValue(cmd, xagent.HeaderCorrelation)
					if err != nil {
						return err
					}
					corr := xcorrelation.New(limitsFrom(cmd))
					corr.Deserialize(value)
					return newPrinter(cmd).entries(newEntryViews(corr))
				},
			},
			{
				Name:      "encode",
				Usage:     "构造 sw8-correlation 头",
				ArgsUsage: "<key=value>...",
				Action: func(_ context.Context, cmd *cli.Command) error {
					return cmdCorrelationEncode(newPrinter(cmd), cmd.Args().Slice(), limitsFrom(cmd))
				},
			},
		},
	}
}

// cmdCorrelationEncode 按参数顺序写入条目，任何一条被拒绝都视为参数错误。
func cmdCorrelationEncode(p printer, pairs []string, limits xcorrelation.Limits) error {
	if len(pairs) == 0 {
		return usagef("至少需要一个 key=value")
	}
	corr := xcorrelation.New(limits)
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return usagef("无效的条目 %q，应为 key=value", pair)
		}
		if _, err := corr.Put(key, value); err != nil {
			return &usageError{err: fmt.Errorf("条目 %q: %w", key, err)}
		}
	}
	return p.value(xagent.HeaderCorrelation, corr.Serialize())
}

// createExtensionCommand 创建 extension 子命令组。
func createExtensionCommand() *cli.Command {
	return &cli.Command{
		Name:    "extension",
		Aliases: []string{"x"},
		Usage:   "sw8-x 头解码",
		Commands: []*cli.Command{
			{
				Name:      "decode",
				Usage:     "解码 sw8-x 头",
				ArgsUsage: "<value>",
				Action: func(_ context.Context, cmd *cli.Command) error {
					value, err := headerValue(cmd, xagent.HeaderExtension)
					if err != nil {
						return err
					}
					var ext xagent.ExtensionContext
					ext.Deserialize(value)
					return newPrinter(cmd).extension(newExtensionView(&ext))
				},
			},
		},
	}
}
