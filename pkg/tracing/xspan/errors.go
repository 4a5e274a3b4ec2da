package xspan

import "errors"

var (
	// ErrAsyncPrepared 重复调用 PrepareForAsync
	ErrAsyncPrepared = errors.New("xspan: prepare for async repeatedly")

	// ErrAsyncNotPrepared 未调用 PrepareForAsync 就调用 AsyncFinish
	ErrAsyncNotPrepared = errors.New("xspan: async finish without prepare")

	// ErrAsyncFinished 重复调用 AsyncFinish
	ErrAsyncFinished = errors.New("xspan: async finish repeatedly")
)
