package xboot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
)

// 生命周期阶段名
const (
	PhasePrepare    = "prepare"
	PhaseBoot       = "boot"
	PhaseOnComplete = "on_complete"
	PhaseShutdown   = "shutdown"
)

// Services 解析后的服务表
type Services struct {
	ordered []Registration // 按 Priority 稳定升序
	byCap   map[string]Registration
	regs    []Registration // 登记顺序
	opts    *options

	mu       sync.Mutex
	booted   bool
	shutdown bool
}

func newServices(resolved []Registration, opts []Option) *Services {
	ordered := slices.Clone(resolved)
	slices.SortStableFunc(ordered, func(a, b Registration) int {
		return a.Priority - b.Priority
	})
	byCap := make(map[string]Registration, len(resolved))
	for _, r := range resolved {
		byCap[r.Capability] = r
	}
	return &Services{
		ordered: ordered,
		byCap:   byCap,
		regs:    resolved,
		opts:    applyOptions(opts),
	}
}

// Lookup 按 capability 查找解析后的服务
func (s *Services) Lookup(capability string) (Service, bool) {
	r, ok := s.byCap[capability]
	return r.Service, ok
}

// Find 按 capability 查找并断言为具体类型
func Find[T Service](s *Services, capability string) (T, bool) {
	var zero T
	svc, ok := s.Lookup(capability)
	if !ok {
		return zero, false
	}
	t, ok := svc.(T)
	return t, ok
}

// Capabilities 按启动顺序返回全部 capability
func (s *Services) Capabilities() []string {
	out := make([]string, len(s.ordered))
	for i, r := range s.ordered {
		out[i] = r.Capability
	}
	return out
}

// Boot 执行 Prepare、Boot、OnComplete 三个阶段，重复调用无效
//
// 单个服务失败被记录并合并到返回值，其余服务照常执行。
func (s *Services) Boot(ctx context.Context) error {
	s.mu.Lock()
	if s.booted {
		s.mu.Unlock()
		return nil
	}
	s.booted = true
	s.mu.Unlock()

	var errs []error
	errs = append(errs, s.phase(ctx, PhasePrepare, s.ordered, Service.Prepare)...)
	errs = append(errs, s.phase(ctx, PhaseBoot, s.ordered, Service.Boot)...)
	errs = append(errs, s.phase(ctx, PhaseOnComplete, s.regs, Service.OnComplete)...)
	s.opts.logger.Info(ctx, "services booted", slog.Int("count", len(s.regs)), slog.Int("failures", len(errs)))
	return errors.Join(errs...)
}

// Shutdown 按启动的逆序关闭全部服务，重复调用无效
func (s *Services) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	s.mu.Unlock()

	reversed := slices.Clone(s.ordered)
	slices.Reverse(reversed)
	errs := s.phase(ctx, PhaseShutdown, reversed, Service.Shutdown)
	s.opts.logger.Info(ctx, "services shut down", slog.Int("failures", len(errs)))
	return errors.Join(errs...)
}

// phase 依次调用 fn，panic 与错误都被记录为 PhaseError
func (s *Services) phase(ctx context.Context, name string, regs []Registration, fn func(Service, context.Context) error) []error {
	var errs []error
	for _, r := range regs {
		if err := call(ctx, r.Service, fn); err != nil {
			s.opts.logger.Error(ctx, "service phase failed",
				slog.String("phase", name),
				slog.String("capability", r.Capability),
				xlog.Err(err))
			errs = append(errs, &PhaseError{Phase: name, Capability: r.Capability, Err: err})
		}
	}
	return errs
}

func call(ctx context.Context, svc Service, fn func(Service, context.Context) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("xboot: service panic: %v", p)
		}
	}()
	return fn(svc, ctx)
}

// Run 启动全部服务，并发运行其中的 Runner，直到收到信号、ctx 取消或某个 Runner 出错
//
// 返回前以 WithShutdownTimeout 的超时执行 Shutdown。
// 因信号结束时返回的错误满足 errors.Is(err, ErrSignal)；Boot 与 Shutdown 的错误被合并到返回值。
func (s *Services) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bootErr := s.Boot(ctx)

	g, _ := newGroup(ctx, s.opts)
	if !s.opts.noSignalHandler {
		g.watchSignals()
	}
	for _, r := range s.ordered {
		if runner, ok := r.Service.(Runner); ok {
			g.Go(r.Capability, runner.Run)
		}
	}
	runErr := g.Wait()

	shutdownCtx := context.WithoutCancel(ctx)
	if s.opts.shutdownTimeout > 0 {
		var cancel context.CancelFunc
		shutdownCtx, cancel = context.WithTimeout(shutdownCtx, s.opts.shutdownTimeout)
		defer cancel()
	}
	shutdownErr := s.Shutdown(shutdownCtx)

	return errors.Join(runErr, bootErr, shutdownErr)
}
