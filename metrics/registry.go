package metrics

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/reqmetrics/clog"
	"github.com/ceyewan/reqmetrics/multiproc"
	"github.com/ceyewan/reqmetrics/xerrors"
)

// Registry 按名称缓存指标实例，多个中间件实例可以共享
//
// 同名指标第二次请求时，结构一致则返回同一实例，否则返回 *SchemaConflictError。
// 锁只在创建指标时使用，记录路径不经过 Registry。
type Registry struct {
	backend  Backend
	gatherer prometheus.Gatherer
	closers  []func(context.Context) error

	mu          sync.Mutex
	instruments map[string]*instrument
}

type instrument struct {
	desc      Desc
	counter   Counter
	gauge     Gauge
	histogram Histogram
}

// NewRegistry 使用指定后端与抓取来源创建 Registry
//
// gatherer 用于 Handler 输出，可以为 nil（此时 Handler 使用 prometheus.DefaultGatherer）。
func NewRegistry(backend Backend, gatherer prometheus.Gatherer) *Registry {
	if backend == nil {
		backend = NewPrometheusBackend(nil)
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Registry{
		backend:     backend,
		gatherer:    gatherer,
		instruments: make(map[string]*instrument),
	}
}

// NewPrometheusRegistry 创建注册到 reg 并从 reg 抓取的 Registry，测试中常用
//
// reg 为 nil 时新建一个独立的 *prometheus.Registry。
func NewPrometheusRegistry(reg *prometheus.Registry) *Registry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	return NewRegistry(NewPrometheusBackend(reg), reg)
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry 返回进程级共享的 Registry
//
// 设置了 PROMETHEUS_MULTIPROC_DIR 时，指标写入多进程快照目录，抓取时合并所有进程的数据；
// 否则使用 prometheus.DefaultRegisterer 与 prometheus.DefaultGatherer。
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = newDefaultRegistry(clog.Discard())
	})
	return defaultRegistry
}

func newDefaultRegistry(logger clog.Logger) *Registry {
	if multiproc.DirFromEnv() == "" {
		return NewRegistry(NewPrometheusBackend(prometheus.DefaultRegisterer), prometheus.DefaultGatherer)
	}

	bridge, err := multiproc.FromEnv(multiproc.WithLogger(logger))
	if err != nil {
		logger.Error("multiprocess mode unavailable, falling back to default registerer", clog.Error(err))
		return NewRegistry(NewPrometheusBackend(prometheus.DefaultRegisterer), prometheus.DefaultGatherer)
	}
	reg := NewRegistry(NewPrometheusBackend(bridge.Registerer()), bridge.Gatherer())
	reg.closers = append(reg.closers, bridge.Close)
	return reg
}

// NewMultiprocessRegistry 使用多进程桥接创建 Registry，Shutdown 时关闭 bridge
func NewMultiprocessRegistry(bridge *multiproc.Bridge) *Registry {
	reg := NewRegistry(NewPrometheusBackend(bridge.Registerer()), bridge.Gatherer())
	reg.closers = append(reg.closers, bridge.Close)
	return reg
}

// Counter 获取或创建计数器
func (r *Registry) Counter(desc Desc) (Counter, error) {
	desc.Kind = KindCounter
	inst, err := r.get(desc)
	if err != nil {
		return nil, err
	}
	return inst.counter, nil
}

// Gauge 获取或创建仪表盘
func (r *Registry) Gauge(desc Desc) (Gauge, error) {
	desc.Kind = KindGauge
	inst, err := r.get(desc)
	if err != nil {
		return nil, err
	}
	return inst.gauge, nil
}

// Histogram 获取或创建直方图
func (r *Registry) Histogram(desc Desc) (Histogram, error) {
	desc.Kind = KindHistogram
	if err := validateBuckets(desc.Buckets); err != nil {
		return nil, err
	}
	if len(desc.Buckets) == 0 {
		desc.Buckets = slices.Clone(prometheus.DefBuckets)
	}
	inst, err := r.get(desc)
	if err != nil {
		return nil, err
	}
	return inst.histogram, nil
}

func (r *Registry) get(desc Desc) (*instrument, error) {
	desc.Labels = slices.Clone(desc.Labels)
	desc.Buckets = slices.Clone(desc.Buckets)

	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instruments[desc.Name]; ok {
		if !sameSchema(inst.desc, desc) {
			return nil, &SchemaConflictError{Name: desc.Name, Existing: inst.desc, New: desc}
		}
		return inst, nil
	}

	inst := &instrument{desc: desc}
	var err error
	switch desc.Kind {
	case KindCounter:
		inst.counter, err = r.backend.Counter(desc)
	case KindGauge:
		inst.gauge, err = r.backend.Gauge(desc)
	case KindHistogram:
		inst.histogram, err = r.backend.Histogram(desc)
	default:
		err = xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown metric kind %d", desc.Kind)
	}
	if err != nil {
		return nil, err
	}
	r.instruments[desc.Name] = inst
	return inst, nil
}

// Gatherer 返回抓取来源
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

// Handler 返回暴露本 Registry 指标的 HTTP Handler
func (r *Registry) Handler(opts ...HandlerOption) http.Handler {
	return Handler(r.gatherer, opts...)
}

// Shutdown 关闭后端以及多进程桥接
func (r *Registry) Shutdown(ctx context.Context) error {
	errs := []error{r.backend.Shutdown(ctx)}
	for _, c := range r.closers {
		errs = append(errs, c(ctx))
	}
	return xerrors.Combine(errs...)
}
