package xboot

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xwalk/pkg/observability/xlog"
)

// Group 基于 errgroup 的并发运行组
//
// 任一函数返回错误或调用 Cancel 时取消共享 ctx，Wait 返回第一个错误或取消原因。
type Group struct {
	eg       *errgroup.Group
	ctx      context.Context
	causeCtx context.Context
	cancel   context.CancelCauseFunc
	opts     *options
}

// NewGroup 创建运行组，返回的 ctx 在组结束时取消
func NewGroup(ctx context.Context, opts ...Option) (*Group, context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	return newGroup(ctx, applyOptions(opts))
}

func newGroup(ctx context.Context, o *options) (*Group, context.Context) {
	causeCtx, cancel := context.WithCancelCause(ctx)
	eg, egCtx := errgroup.WithContext(causeCtx)
	return &Group{
		eg:       eg,
		ctx:      egCtx,
		causeCtx: causeCtx,
		cancel:   cancel,
		opts:     o,
	}, egCtx
}

// Go 在组内运行 fn
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.eg.Go(func() error {
		if fn == nil {
			return ErrNilFunc
		}
		g.opts.logger.Debug(g.ctx, "runner starting", slog.String("runner", name))
		err := fn(g.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			g.opts.logger.Warn(g.ctx, "runner exited with error", slog.String("runner", name), xlog.Err(err))
		} else {
			g.opts.logger.Debug(g.ctx, "runner stopped", slog.String("runner", name))
		}
		return err
	})
}

// Wait 等待全部函数返回
//
// 因 Cancel(cause) 或收到信号结束时返回该原因；仅因父 ctx 取消结束时返回 nil。
func (g *Group) Wait() error {
	defer g.cancel(nil)
	err := g.eg.Wait()

	cause := context.Cause(g.causeCtx)
	if cause == nil || (err != nil && !errors.Is(err, context.Canceled)) {
		return err
	}
	if errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

// Cancel 以 cause 取消组
func (g *Group) Cancel(cause error) {
	g.cancel(cause)
}

// watchSignals 收到信号时以 SignalError 取消组
func (g *Group) watchSignals() {
	signals := g.opts.signals
	if len(signals) == 0 {
		signals = DefaultSignals()
	}
	g.eg.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, signals...)
		defer signal.Stop(sigCh)

		var sig os.Signal
		select {
		case sig = <-testSigChan(g.ctx):
		case sig = <-sigCh:
		case <-g.ctx.Done():
			return nil
		}
		g.opts.logger.Info(g.ctx, "received signal", slog.String("signal", sig.String()))
		g.cancel(&SignalError{Signal: sig})
		return nil
	})
}

type testSigChanKey struct{}

// testSigChan 测试注入的信号源，未注入时返回 nil（select 中永不就绪）
func testSigChan(ctx context.Context) <-chan os.Signal {
	c, _ := ctx.Value(testSigChanKey{}).(<-chan os.Signal)
	return c
}

func withTestSigChan(ctx context.Context, c <-chan os.Signal) context.Context {
	return context.WithValue(ctx, testSigChanKey{}, c)
}
