package xtrace

import (
	"net/http"
	"strconv"

	"github.com/omeyang/xwalk/pkg/tracing/xagent"
	"github.com/omeyang/xwalk/pkg/tracing/xspan"
	"github.com/omeyang/xwalk/pkg/tracing/xtag"
)

// =============================================================================
// HTTP Header 提取/注入
// =============================================================================

// InjectToHeader 将 carrier 的传播头写入 h
//
// carrier 无效时只写入非空的关联数据，其余同名头保持不变。
func InjectToHeader(h http.Header, carrier *xagent.ContextCarrier) {
	if h == nil {
		return
	}
	inject(carrier, h.Set)
}

// ExtractFromHeader 从 HTTP Header 构造 carrier，结果可直接传给 CreateEntrySpan
func ExtractFromHeader(m *xagent.Manager, h http.Header) *xagent.ContextCarrier {
	return extract(m, h.Get)
}

// =============================================================================
// HTTP 服务端中间件
// =============================================================================

// MiddlewareOption 中间件配置选项
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	operationName func(r *http.Request) string
}

// WithOperationName 设置 EntrySpan 操作名的生成方式
//
// 默认格式为 "{METHOD}/path"，不含查询参数，避免端点基数膨胀。
func WithOperationName(fn func(r *http.Request) string) MiddlewareOption {
	return func(cfg *middlewareConfig) {
		if fn != nil {
			cfg.operationName = fn
		}
	}
}

func defaultOperationName(r *http.Request) string {
	return "{" + r.Method + "}" + r.URL.Path
}

// HTTPMiddleware 返回 HTTP 服务端中间件
//
// 为每个请求创建 EntrySpan 并把绑定了追踪上下文的 ctx 传给下游 handler。
// 上游带有效 sw8 头时强制记录并延续上游 trace；
// 响应码 >= 500 或 handler panic 时标记 Span 出错，panic 在停止 Span 后继续向上抛出。
func HTTPMiddleware(m *xagent.Manager, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := &middlewareConfig{operationName: defaultOperationName}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := m.CreateEntrySpan(r.Context(), cfg.operationName(r), ExtractFromHeader(m, r.Header))
			span.SetComponent(xspan.ComponentGoHTTPServer)
			span.SetLayer(xspan.LayerHTTP)
			span.Tag(xtag.URL, r.URL.String())
			span.Tag(xtag.HTTPMethod, r.Method)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if p := recover(); p != nil {
					span.ErrorOccurred()
					m.StopSpan(ctx, span)
					panic(p)
				}
				span.Tag(xtag.HTTPStatusCode, strconv.Itoa(rec.status))
				if rec.status >= http.StatusInternalServerError {
					span.ErrorOccurred()
				}
				m.StopSpan(ctx, span)
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))
		})
	}
}

// statusRecorder 记录 handler 写出的响应码
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

// Unwrap 供 http.ResponseController 访问底层 ResponseWriter
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// =============================================================================
// HTTP 客户端
// =============================================================================

// Transport 为出站请求创建 ExitSpan 并注入传播头的 http.RoundTripper
type Transport struct {
	m    *xagent.Manager
	base http.RoundTripper
}

// NewTransport 包装 base，base 为 nil 时使用 http.DefaultTransport
func NewTransport(m *xagent.Manager, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{m: m, base: base}
}

// RoundTrip 实现 http.RoundTripper
//
// 传入的请求不被修改，传播头写入克隆后的请求。
// 对端地址取 URL 的 host:port，响应码 >= 400 或传输错误时标记 Span 出错。
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	carrier := t.m.NewCarrier()
	ctx, span := t.m.CreateExitSpan(req.Context(), defaultOperationName(req), req.URL.Host, carrier)
	span.SetComponent(xspan.ComponentGoHTTPClient)
	span.SetLayer(xspan.LayerHTTP)
	span.Tag(xtag.URL, req.URL.String())
	span.Tag(xtag.HTTPMethod, req.Method)

	out := req.Clone(ctx)
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	InjectToHeader(out.Header, carrier)

	resp, err := t.base.RoundTrip(out)
	switch {
	case err != nil:
		span.Log(err)
	default:
		span.Tag(xtag.HTTPStatusCode, strconv.Itoa(resp.StatusCode))
		if resp.StatusCode >= http.StatusBadRequest {
			span.ErrorOccurred()
		}
	}
	t.m.StopSpan(ctx, span)
	return resp, err
}
