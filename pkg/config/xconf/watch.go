package xconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/tracing/xagent"
)

// DefaultDebounce 默认防抖时间
const DefaultDebounce = 100 * time.Millisecond

// WatchCallback 重载回调，err 非 nil 时 cfg 为零值且 Loader 仍持有旧配置
type WatchCallback func(cfg AgentConfig, err error)

// Watcher 配置文件监视器
type Watcher struct {
	loader   *Loader
	watcher  *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mu      sync.Mutex
	running bool
	timer   *time.Timer
}

// WatchOption 监视器配置选项
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

// WithDebounce 设置防抖时间，时间窗口内的多次变更只触发一次重载
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		if d > 0 {
			o.debounce = d
		}
	}
}

// Watch 创建配置文件监视器
//
// 监视配置文件所在目录而不是文件本身：编辑器保存时可能先删除再创建，直接监视文件会丢失事件。
// 返回的 Watcher 需要调用 StartAsync 开始监视，Stop 停止。
func Watch(l *Loader, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	if l == nil || l.fromRaw || l.path == "" {
		return nil, ErrNotFromFile
	}

	options := &watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(options)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xconf: failed to create watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := fsWatcher.Add(dir); err != nil {
		return nil, errors.Join(
			fmt.Errorf("xconf: failed to watch directory %s: %w", dir, err),
			fsWatcher.Close(),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		loader:   l,
		watcher:  fsWatcher,
		callback: callback,
		debounce: options.debounce,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}, nil
}

// StartAsync 在后台 goroutine 中开始监视，重复调用无效
func (w *Watcher) StartAsync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.ctx.Err() != nil {
		return
	}
	w.running = true
	go w.run()
}

// Stop 停止监视并等待监视 goroutine 退出，取消尚未触发的重载
//
// 可在重载回调中调用；监视错误的回调运行在监视 goroutine 上，不应在其中调用 Stop。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.ctx.Err() != nil {
		w.mu.Unlock()
		return nil
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.cancel()
	started := w.running
	w.running = false
	w.mu.Unlock()

	err := w.watcher.Close()
	if started {
		<-w.done
	}
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	filename := filepath.Base(w.loader.path)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event, filename)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.callback != nil {
				w.callback(AgentConfig{}, fmt.Errorf("xconf: watch error: %w", err))
			}
		}
	}
}

// handleEvent 处理目标文件的 Write/Create/Rename 事件
//
// Rename 覆盖 vim/emacs 先写临时文件再改名的原子写入模式。
func (w *Watcher) handleEvent(event fsnotify.Event, filename string) {
	if filepath.Base(event.Name) != filename {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	cfg, err := w.loader.Reload()
	if w.callback != nil {
		w.callback(cfg, err)
	}
}

// =============================================================================
// 推送到引擎
// =============================================================================

// SettingsUpdater 接收热更新的运行参数，*xagent.Manager 实现该接口
type SettingsUpdater interface {
	UpdateSettings(s xagent.Settings) error
}

// ApplySettings 返回把重载结果推送给 u 的回调
//
// 重载或更新失败时记录日志，引擎继续使用旧参数。logger 为 nil 时使用默认 Logger。
func ApplySettings(u SettingsUpdater, logger xlog.Logger) WatchCallback {
	if logger == nil {
		logger = xlog.Default()
	}
	logger = logger.With(xlog.Component("xconf"))
	return func(cfg AgentConfig, err error) {
		ctx := context.Background()
		if err != nil {
			logger.Warn(ctx, "config reload failed, keeping previous settings", xlog.Err(err))
			return
		}
		if err := u.UpdateSettings(cfg.Settings()); err != nil {
			logger.Error(ctx, "apply settings failed", xlog.Err(err))
			return
		}
		logger.Info(ctx, "config reloaded",
			slog.String("service", cfg.Agent.ServiceName),
			slog.Int("span_limit", cfg.Agent.SpanLimitPerSegment))
	}
}
