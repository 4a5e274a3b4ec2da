package xagent

import "errors"

var (
	// ErrNotActiveSpan 停止的 Span 不是栈顶 Span
	ErrNotActiveSpan = errors.New("xagent: span is not the active span")

	// ErrEmptyStack Span 栈为空时停止 Span
	ErrEmptyStack = errors.New("xagent: span stack is empty")

	// ErrInjectWithoutExit 在非 Exit Span 上注入 carrier
	ErrInjectWithoutExit = errors.New("xagent: inject requires an active exit span")

	// ErrAsyncUnderflow AsyncStop 次数多于 AwaitFinishAsync
	ErrAsyncUnderflow = errors.New("xagent: async stop without pending async span")

	// ErrInvalidSettings 配置不合法
	ErrInvalidSettings = errors.New("xagent: invalid settings")

	// ErrNoContext ctx 上没有绑定追踪上下文
	ErrNoContext = errors.New("xagent: no tracing context bound to ctx")
)
