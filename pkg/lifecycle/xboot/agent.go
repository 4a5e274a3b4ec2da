package xboot

import (
	"context"
	"sync"

	"github.com/omeyang/xwalk/pkg/config/xconf"
	"github.com/omeyang/xwalk/pkg/observability/xlog"
	"github.com/omeyang/xwalk/pkg/tracing/xagent"
)

// 内置子系统的 capability
const (
	CapabilityTracing     = "tracing"
	CapabilityConfigWatch = "config-watch"
)

// =============================================================================
// 追踪引擎
// =============================================================================

type tracingService struct {
	Base
	m *xagent.Manager
}

// TracingService 把 Manager 包装为服务：Boot 启动 segment 投递，Shutdown 排空并停止
func TracingService(m *xagent.Manager) Service {
	return &tracingService{m: m}
}

func (s *tracingService) Boot(context.Context) error {
	return s.m.Start()
}

func (s *tracingService) Shutdown(context.Context) error {
	return s.m.Close()
}

// Manager 返回被包装的 Manager，供 Find 取用
func (s *tracingService) Manager() *xagent.Manager {
	return s.m
}

// =============================================================================
// 配置热重载
// =============================================================================

type configWatchService struct {
	Base
	loader  *xconf.Loader
	updater xconf.SettingsUpdater
	logger  xlog.Logger
	opts    []xconf.WatchOption

	mu      sync.Mutex
	watcher *xconf.Watcher
}

// ConfigWatchService 监视 loader 的配置文件，变更后推送新的 Settings 给 updater
//
// loader 不是从文件创建时 Boot 返回 xconf.ErrNotFromFile。
func ConfigWatchService(loader *xconf.Loader, updater xconf.SettingsUpdater, logger xlog.Logger, opts ...xconf.WatchOption) Service {
	return &configWatchService{loader: loader, updater: updater, logger: logger, opts: opts}
}

func (s *configWatchService) Boot(context.Context) error {
	w, err := xconf.Watch(s.loader, xconf.ApplySettings(s.updater, s.logger), s.opts...)
	if err != nil {
		return err
	}
	w.StartAsync()

	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

func (s *configWatchService) Shutdown(context.Context) error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}
