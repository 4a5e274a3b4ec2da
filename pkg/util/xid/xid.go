package xid

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/sonyflake/v2"
)

var (
	// ErrInvalidConfig 生成器配置无效（机器 id 获取或校验失败）
	ErrInvalidConfig = errors.New("xid: invalid config")

	// ErrInvalidID 不是本包生成的 id
	ErrInvalidID = errors.New("xid: invalid id")
)

const (
	separator = "."
	// seqModulo 每毫秒可区分的序号数
	seqModulo = 10000
)

// Generator 全局 id 生成器，并发安全
type Generator struct {
	prefix string
	seq    atomic.Uint64
	now    func() time.Time
}

// NewGenerator 创建生成器
//
// 机器 id 无法获取时返回 ErrInvalidConfig；调用方可改用 NewFallbackGenerator。
func NewGenerator(opts ...Option) (*Generator, error) {
	o := &options{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	machineIDFn := o.machineID
	if machineIDFn == nil {
		machineIDFn = DefaultMachineID
	}
	settings := sonyflake.Settings{
		MachineID: func() (int, error) {
			id, err := machineIDFn()
			return int(id), err
		},
	}
	if o.checkMachineID != nil {
		settings.CheckMachineID = func(id int) bool {
			return id >= 0 && id <= 0xFFFF && o.checkMachineID(uint16(id))
		}
	}

	sf, err := sonyflake.New(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	instance, err := sf.NextID()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return newGenerator(strconv.FormatInt(instance, 10), o.now), nil
}

// NewFallbackGenerator 创建不依赖机器 id 的生成器，实例判别码取随机数
func NewFallbackGenerator() *Generator {
	return newGenerator(strconv.FormatUint(uint64(uuid.New().ID()), 10), time.Now)
}

func newGenerator(instance string, now func() time.Time) *Generator {
	process := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Generator{
		prefix: process + separator + instance + separator,
		now:    now,
	}
}

// Next 生成新 id
func (g *Generator) Next() string {
	seq := g.seq.Add(1) % seqModulo
	stamp := uint64(g.now().UnixMilli())*seqModulo + seq //nolint:gosec // 毫秒时间戳恒为正
	return g.prefix + strconv.FormatUint(stamp, 10)
}

// Parts 拆分后的 id
type Parts struct {
	Process  string
	Instance string
	Time     time.Time
	Sequence uint64
}

// Parse 拆分 id，主要用于排障
func Parse(id string) (Parts, error) {
	fields := strings.Split(id, separator)
	if len(fields) != 3 || fields[0] == "" || fields[1] == "" {
		return Parts{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	stamp, err := strconv.ParseUint(fields[2], 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: %q: %w", ErrInvalidID, id, err)
	}
	return Parts{
		Process:  fields[0],
		Instance: fields[1],
		Time:     time.UnixMilli(int64(stamp / seqModulo)), //nolint:gosec // 由 Next 生成的值不会溢出
		Sequence: stamp % seqModulo,
	}, nil
}
