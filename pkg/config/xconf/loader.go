package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	// FormatYAML YAML 格式（推荐用于 K8s ConfigMap）。
	FormatYAML Format = "yaml"

	// FormatJSON JSON 格式。
	FormatJSON Format = "json"
)

// Loader 持有已解析并校验的配置
//
// Config/Client 无锁读取当前快照；Reload 串行执行，解析或校验失败时保留旧快照。
type Loader struct {
	path    string
	format  Format
	opts    *Options
	fromRaw bool

	reloadMu sync.Mutex
	k        atomic.Pointer[koanf.Koanf]
	cfg      atomic.Pointer[AgentConfig]
}

// Load 从文件加载配置，根据扩展名检测格式（.yaml/.yml 或 .json）
func Load(path string, opts ...Option) (*Loader, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}
	l := newLoader(format, opts)
	l.path = path
	if _, err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadBytes 从字节数据加载配置，需要显式指定格式
//
// 空数据得到 DefaultConfig()。
func LoadBytes(data []byte, format Format, opts ...Option) (*Loader, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}
	l := newLoader(format, opts)
	l.fromRaw = true
	k, cfg, err := l.parse(data)
	if err != nil {
		return nil, err
	}
	l.store(k, cfg)
	return l, nil
}

func newLoader(format Format, opts []Option) *Loader {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Loader{format: format, opts: options}
}

// Config 返回当前配置快照
func (l *Loader) Config() AgentConfig {
	return *l.cfg.Load()
}

// Client 返回当前的 koanf 实例，可读取业务自定义的配置段
//
// Reload 后旧实例仍可使用，但数据是过期的。
func (l *Loader) Client() *koanf.Koanf {
	return l.k.Load()
}

// Unmarshal 将指定路径的配置反序列化到 target，path 为空时反序列化整个配置
func (l *Loader) Unmarshal(path string, target any) error {
	if err := l.Client().UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: l.opts.Tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Path 返回配置文件路径，从字节数据创建时为空
func (l *Loader) Path() string { return l.path }

// Format 返回配置格式
func (l *Loader) Format() Format { return l.format }

// Reload 重新读取配置文件
//
// 新配置通过校验后才替换当前快照，失败时返回错误且快照不变。
func (l *Loader) Reload() (AgentConfig, error) {
	if l.fromRaw {
		return AgentConfig{}, ErrNotFromFile
	}
	l.reloadMu.Lock()
	defer l.reloadMu.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		return AgentConfig{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	k, cfg, err := l.parse(data)
	if err != nil {
		return AgentConfig{}, err
	}
	l.store(k, cfg)
	return cfg, nil
}

func (l *Loader) store(k *koanf.Koanf, cfg AgentConfig) {
	l.k.Store(k)
	l.cfg.Store(&cfg)
}

// parse 解析 data 并叠加到默认配置上
//
// 设计决策: 反序列化目标预先填入 DefaultConfig()，mapstructure 只覆盖出现的键，
// 默认值因此只在 DefaultConfig 一处维护。
func (l *Loader) parse(data []byte) (*koanf.Koanf, AgentConfig, error) {
	k := koanf.New(l.opts.Delim)
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser(l.format)); err != nil {
			return nil, AgentConfig{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	cfg := DefaultConfig()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, AgentConfig{}, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, AgentConfig{}, err
	}
	return k, cfg, nil
}

// =============================================================================
// 内部辅助函数
// =============================================================================

func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

func isValidFormat(format Format) bool {
	return format == FormatYAML || format == FormatJSON
}

func parser(format Format) koanf.Parser {
	if format == FormatJSON {
		return json.Parser()
	}
	return yaml.Parser()
}
