package xboot

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroup(t *testing.T) {
	t.Run("空组", func(t *testing.T) {
		g, _ := NewGroup(context.Background(), WithLogger(quietLogger(t)))
		assert.NoError(t, g.Wait())
	})

	t.Run("错误取消其余函数", func(t *testing.T) {
		errTrigger := errors.New("trigger")
		var stopped atomic.Bool

		g, ctx := NewGroup(context.Background(), WithLogger(quietLogger(t)))
		g.Go("waiter", func(ctx context.Context) error {
			<-ctx.Done()
			stopped.Store(true)
			return ctx.Err()
		})
		g.Go("trigger", func(context.Context) error { return errTrigger })

		assert.ErrorIs(t, g.Wait(), errTrigger)
		assert.True(t, stopped.Load())
		assert.Error(t, ctx.Err())
	})

	t.Run("Cancel返回原因", func(t *testing.T) {
		errCause := errors.New("maintenance")
		g, _ := NewGroup(context.Background(), WithLogger(quietLogger(t)))
		g.Go("waiter", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		g.Cancel(errCause)
		assert.ErrorIs(t, g.Wait(), errCause)
	})

	t.Run("父ctx取消返回nil", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		g, _ := NewGroup(parent, WithLogger(quietLogger(t)))
		g.Go("waiter", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		cancel()
		assert.NoError(t, g.Wait())
	})

	t.Run("nil函数", func(t *testing.T) {
		g, _ := NewGroup(context.Background(), WithLogger(quietLogger(t)))
		g.Go("nil", nil)
		assert.ErrorIs(t, g.Wait(), ErrNilFunc)
	})
}

func TestSignalError(t *testing.T) {
	nilSig := &SignalError{}
	assert.Equal(t, "received signal <nil>", nilSig.Error())
	assert.ErrorIs(t, nilSig, ErrSignal)
}
