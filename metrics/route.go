package metrics

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/reqmetrics/xerrors"
)

// RouteState 路由匹配状态
type RouteState int

const (
	// RouteUnknown 无法得知路由信息，只按原始路径记录
	RouteUnknown RouteState = iota
	// RouteMatched 命中路由，Template 为路由模板
	RouteMatched
	// RouteUnmatched 路由表中没有任何路由能处理该请求
	RouteUnmatched
)

// RouteMatch 一次路由探测的结果
type RouteMatch struct {
	Template string
	State    RouteState
}

// Matched 命中路由的便捷构造
func Matched(template string) RouteMatch {
	return RouteMatch{Template: template, State: RouteMatched}
}

// Unmatched 未命中路由的便捷构造
func Unmatched() RouteMatch {
	return RouteMatch{State: RouteUnmatched}
}

// RouteMatcher 在分发请求之前探测路由模板
//
// 实现不能修改请求。
type RouteMatcher interface {
	MatchRoute(r *http.Request) RouteMatch
}

// RouteMatcherFunc 函数适配器
type RouteMatcherFunc func(r *http.Request) RouteMatch

func (f RouteMatcherFunc) MatchRoute(r *http.Request) RouteMatch {
	return f(r)
}

// ServeMuxMatcher 通过 mux.Handler 探测 *http.ServeMux 的路由模板
//
// 模板中的方法与主机部分会被去掉，"GET example.com/items/{id}" 记为 "/items/{id}"。
func ServeMuxMatcher(mux *http.ServeMux) RouteMatcher {
	return RouteMatcherFunc(func(r *http.Request) RouteMatch {
		_, pattern := mux.Handler(r)
		if pattern == "" {
			return Unmatched()
		}
		return Matched(patternPath(pattern))
	})
}

// ChiMatcher 通过 chi.Routes.Match 探测 chi 路由模板，支持挂载的子路由
func ChiMatcher(routes chi.Routes) RouteMatcher {
	return RouteMatcherFunc(func(r *http.Request) RouteMatch {
		return chiMatch(routes, r)
	})
}

func chiMatch(routes chi.Routes, r *http.Request) RouteMatch {
	rctx := chi.NewRouteContext()
	if !routes.Match(rctx, r.Method, requestPath(r)) {
		return Unmatched()
	}
	return Matched(rctx.RoutePattern())
}

// CachedMatcher 用容量为 size 的本地缓存包装 m，缓存键为 host + method + path
//
// 路由表很大或探测开销较高时使用；路由表在运行期变化时不要使用。
func CachedMatcher(m RouteMatcher, size int) (RouteMatcher, error) {
	if size <= 0 {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "cache size must be positive, got %d", size)
	}
	cache, err := otter.New(&otter.Options[string, RouteMatch]{
		MaximumSize: size,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build route cache")
	}
	return RouteMatcherFunc(func(r *http.Request) RouteMatch {
		key := r.Host + " " + r.Method + " " + requestPath(r)
		if v, ok := cache.GetIfPresent(key); ok {
			return v
		}
		v := m.MatchRoute(r)
		cache.Set(key, v)
		return v
	}), nil
}

// preDispatchRoute 在分发请求之前探测路由
//
// 未配置 matcher 时，若请求已经过 chi 路由器（中间件挂在 r.Use 上），使用上下文中的
// 根路由表探测完整路径。
func preDispatchRoute(m RouteMatcher, r *http.Request) RouteMatch {
	if m != nil {
		return m.MatchRoute(r)
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.Routes != nil {
		return chiMatch(rctx.Routes, r)
	}
	return RouteMatch{State: RouteUnknown}
}

// postDispatchRoute 在 handler 执行完毕后读取路由器留下的信息
//
// chi 在请求 context 中的 RouteContext 上记录模板；ServeMux 在 r.Pattern 上记录模板。
// 两者都没有时返回 RouteUnknown。
func postDispatchRoute(r *http.Request) RouteMatch {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return Matched(pattern)
		}
		return Unmatched()
	}
	if r.Pattern != "" {
		return Matched(patternPath(r.Pattern))
	}
	return RouteMatch{State: RouteUnknown}
}

// patternPath 去掉 ServeMux 模板中的方法与主机
func patternPath(pattern string) string {
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = strings.TrimLeft(pattern[i+1:], " \t")
	}
	if i := strings.IndexByte(pattern, '/'); i > 0 {
		pattern = pattern[i:]
	}
	return pattern
}

func requestPath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}
