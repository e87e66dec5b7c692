package metrics

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Middleware 返回 net/http 中间件，也可以直接用于 chi 的 Use
//
//	r := chi.NewRouter()
//	r.Use(in.Middleware)
//
// 分发前路由探测的来源，按优先级：
//  1. WithRouteMatcher 配置的 matcher
//  2. next 本身是 *http.ServeMux 或 chi.Routes 时，直接探测 next
//  3. 作为 chi 中间件时，探测请求上下文中的 chi 路由表
//
// 三者都没有时只能在 handler 返回后读取路由，进行中请求数使用原始路径，
// 未命中路由的请求也无法被过滤；开启 GroupPaths 或 FilterUnhandledPaths 时会告警。
//
// handler panic 时按 DefaultErrorStatus 记录（若尚未写出响应），随后原样重新抛出。
func (in *Instrumentor) Middleware(next http.Handler) http.Handler {
	matcher := in.matcher
	if matcher == nil {
		switch h := next.(type) {
		case *http.ServeMux:
			matcher = ServeMuxMatcher(h)
		case chi.Routes:
			matcher = ChiMatcher(h)
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if in.classifier.Skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		pre := preDispatchRoute(matcher, r)
		if pre.State == RouteUnknown {
			in.warnRouteUnknown(r)
		}

		st := in.begin(r, pre)
		if st == nil {
			next.ServeHTTP(w, r)
			return
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			fault := recover()
			in.finish(st, r, outcome{
				route:         postDispatchRoute(r),
				status:        ww.Status(),
				written:       ww.Status() != 0 || ww.BytesWritten() > 0,
				responseBytes: int64(ww.BytesWritten()),
				faulted:       fault != nil,
			})
			if fault != nil {
				panic(fault)
			}
		}()

		next.ServeHTTP(ww, r)
	})
}
