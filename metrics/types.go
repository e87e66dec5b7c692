// Package metrics 为 HTTP 服务提供 Prometheus 请求指标中间件。
//
// 中间件拦截每个请求，记录请求数、耗时、进行中的请求数以及可选的请求体/响应体大小，
// 并把它们写入指标注册表供 Prometheus 抓取。支持 net/http、chi 与 gin。
//
// 生成的指标（prefix 默认为 "app"）：
//
//	{prefix}_requests_total                counter    app_name, method, path, status_code, <额外标签>
//	{prefix}_request_duration_seconds      histogram  app_name, method, path, status_code, <额外标签>
//	{prefix}_requests_in_progress          gauge      app_name, method, path
//	{prefix}_response_body_size_bytes      counter    可选，标签同 requests_total
//	{prefix}_request_body_size_bytes       counter    可选，标签同 requests_total
//
// 快速开始：
//
//	reg := metrics.NewPrometheusRegistry(prometheus.NewRegistry())
//	in, err := metrics.New(&metrics.Config{
//	    AppName:    "order-api",
//	    GroupPaths: true,
//	    SkipPaths:  []string{"/metrics", "/healthz"},
//	}, metrics.WithRegistry(reg), metrics.WithLabels(
//	    metrics.LabelSpec{Name: "user", Value: metrics.FromHeader("X-User", "frank", "estelle")},
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	mux := http.NewServeMux()
//	mux.Handle("/metrics", reg.Handler())
//	http.ListenAndServe(":8080", in.Middleware(mux))
//
// 直接包装 *http.ServeMux 或 chi 路由器、或者挂在 chi 的 Use 上时，中间件在分发前探测路由；
// 中间还隔着其他 handler 时，需要通过 WithRouteMatcher(ServeMuxMatcher(mux)) 指定探测来源，
// 否则 GroupPaths 与 FilterUnhandledPaths 无法作用于进行中请求数，ServeMux 的 404 也无法被过滤。
//
// gin：
//
//	r := gin.New()
//	r.Use(in.Gin())
//
// 多个中间件实例共享同一个 Registry 时，同名同结构的指标只注册一次；
// 同名但类型、标签集合或桶边界不同会返回 *SchemaConflictError。
package metrics

import "context"

// 固定标签名，额外标签不能与它们重名
const (
	LabelAppName    = "app_name"
	LabelMethod     = "method"
	LabelPath       = "path"
	LabelStatusCode = "status_code"
)

// Kind 指标类型
type Kind int

const (
	KindCounter Kind = iota
	KindGauge
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindCounter:
		return "counter"
	case KindGauge:
		return "gauge"
	case KindHistogram:
		return "histogram"
	default:
		return "unknown"
	}
}

// Desc 描述一个指标的身份：名称、类型、标签集合与桶边界
type Desc struct {
	Name    string
	Help    string
	Kind    Kind
	Labels  []string
	Buckets []float64
}

// Counter 计数器接口，只能增加
//
// 使用示例：
//
//	counter.Inc(ctx, metrics.L("method", "GET"), metrics.L("status_code", "200"))
//	counter.Add(ctx, 512, metrics.L("method", "POST"))
type Counter interface {
	// Inc 将计数器增加 1
	Inc(ctx context.Context, labels ...Label)

	// Add 将计数器增加 val，val 不能为负
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 仪表盘接口，用于进行中的请求数这类可增可减的值
type Gauge interface {
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 直方图接口，用于记录请求耗时分布
//
// ctx 中携带的 exemplar（见 ContextWithExemplar）会被支持的后端附加到观测值上。
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Backend 指标后端，负责创建底层指标实例
//
// 后端只负责创建，不做身份去重；去重由 Registry 完成。
// 传给 Counter/Gauge/Histogram 的标签必须与 Desc.Labels 完全一致（顺序无关），
// 否则后端可能 panic，由中间件记录日志后吞掉。
type Backend interface {
	Counter(desc Desc) (Counter, error)
	Gauge(desc Desc) (Gauge, error)
	Histogram(desc Desc) (Histogram, error)

	// Shutdown 释放后端资源
	Shutdown(ctx context.Context) error
}
