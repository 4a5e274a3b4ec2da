package xdispatch

import "errors"

var (
	// ErrNilListener Listener 为 nil
	ErrNilListener = errors.New("xdispatch: listener cannot be nil")

	// ErrStopped Dispatcher 已停止
	ErrStopped = errors.New("xdispatch: dispatcher is stopped")

	// ErrQueueFull 队列已满，segment 被丢弃
	ErrQueueFull = errors.New("xdispatch: queue is full")
)
