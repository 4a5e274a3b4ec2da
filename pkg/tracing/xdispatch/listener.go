package xdispatch

import "github.com/omeyang/xwalk/pkg/tracing/xspan"

//go:generate mockgen -source=listener.go -destination=listener_mock_test.go -package=xdispatch

// Listener 接收定稿的 segment，在 Dispatcher 的 worker goroutine 上调用
type Listener interface {
	AfterFinished(segment *xspan.TraceSegment)
}

// ListenerFunc 函数适配器
type ListenerFunc func(segment *xspan.TraceSegment)

// AfterFinished 调用 f(segment)
func (f ListenerFunc) AfterFinished(segment *xspan.TraceSegment) { f(segment) }
