package metrics

import "github.com/ceyewan/reqmetrics/clog"

// Option 配置 Instrumentor 的选项函数
type Option func(*options)

type options struct {
	logger   clog.Logger
	registry *Registry
	matcher  RouteMatcher
	exemplar ExemplarFunc
	labels   []LabelSpec
}

func applyOptions(opts ...Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入日志记录器，组件会自动添加 "metrics" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("metrics")
		}
	}
}

// WithRegistry 指定指标注册表，未指定时使用 DefaultRegistry()
func WithRegistry(reg *Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithRouteMatcher 在分发请求之前探测路由模板
//
// net/http 与 chi 默认在 handler 返回后读取路由信息；配置 matcher 后，
// 进行中请求数的 path 标签同样可以使用模板，未命中的请求也可以在分发前被过滤。
func WithRouteMatcher(m RouteMatcher) Option {
	return func(o *options) {
		o.matcher = m
	}
}

// WithExemplars 自定义 exemplar 计算函数，同时隐式开启 exemplar
func WithExemplars(fn ExemplarFunc) Option {
	return func(o *options) {
		o.exemplar = fn
	}
}

// WithLabels 追加代码中声明的额外标签，位于 Config.Labels 之后
func WithLabels(specs ...LabelSpec) Option {
	return func(o *options) {
		o.labels = append(o.labels, specs...)
	}
}
