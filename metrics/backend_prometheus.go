package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// prometheusBackend 基于 client_golang 的 *Vec 实现 Backend
type prometheusBackend struct {
	reg prometheus.Registerer
}

// NewPrometheusBackend 创建注册到 reg 的 Prometheus 后端，reg 为 nil 时使用 prometheus.DefaultRegisterer
//
// 若 reg 中已存在同名同标签的指标（例如另一个 Registry 实例注册过），会直接复用；
// 其他注册错误转换为 *SchemaConflictError。
func NewPrometheusBackend(reg prometheus.Registerer) Backend {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &prometheusBackend{reg: reg}
}

func (b *prometheusBackend) Counter(desc Desc) (Counter, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: desc.Name, Help: desc.Help}, desc.Labels)
	got, err := register(b.reg, desc, vec)
	if err != nil {
		return nil, err
	}
	existing, ok := got.(*prometheus.CounterVec)
	if !ok {
		return nil, &SchemaConflictError{Name: desc.Name, New: desc}
	}
	return &promCounter{vec: existing}, nil
}

func (b *prometheusBackend) Gauge(desc Desc) (Gauge, error) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: desc.Name, Help: desc.Help}, desc.Labels)
	got, err := register(b.reg, desc, vec)
	if err != nil {
		return nil, err
	}
	existing, ok := got.(*prometheus.GaugeVec)
	if !ok {
		return nil, &SchemaConflictError{Name: desc.Name, New: desc}
	}
	return &promGauge{vec: existing}, nil
}

func (b *prometheusBackend) Histogram(desc Desc) (Histogram, error) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    desc.Name,
		Help:    desc.Help,
		Buckets: desc.Buckets,
	}, desc.Labels)
	got, err := register(b.reg, desc, vec)
	if err != nil {
		return nil, err
	}
	existing, ok := got.(*prometheus.HistogramVec)
	if !ok {
		return nil, &SchemaConflictError{Name: desc.Name, New: desc}
	}
	return &promHistogram{vec: existing}, nil
}

func (b *prometheusBackend) Shutdown(context.Context) error {
	return nil
}

// register 注册 c；已存在时返回已注册的 Collector
func register(reg prometheus.Registerer, desc Desc, c prometheus.Collector) (prometheus.Collector, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		return are.ExistingCollector, nil
	}
	return nil, &SchemaConflictError{Name: desc.Name, New: desc, Err: err}
}

func toPromLabels(labels []Label) prometheus.Labels {
	m := make(prometheus.Labels, len(labels))
	for _, l := range labels {
		m[l.Key] = l.Value
	}
	return m
}

type promCounter struct {
	vec *prometheus.CounterVec
}

func (c *promCounter) Inc(ctx context.Context, labels ...Label) {
	c.Add(ctx, 1, labels...)
}

func (c *promCounter) Add(ctx context.Context, val float64, labels ...Label) {
	counter := c.vec.With(toPromLabels(labels))
	if ex := ExemplarFromContext(ctx); ex != nil {
		if adder, ok := counter.(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(val, ex)
			return
		}
	}
	counter.Add(val)
}

type promGauge struct {
	vec *prometheus.GaugeVec
}

func (g *promGauge) Inc(_ context.Context, labels ...Label) {
	g.vec.With(toPromLabels(labels)).Inc()
}

func (g *promGauge) Dec(_ context.Context, labels ...Label) {
	g.vec.With(toPromLabels(labels)).Dec()
}

type promHistogram struct {
	vec *prometheus.HistogramVec
}

func (h *promHistogram) Record(ctx context.Context, val float64, labels ...Label) {
	obs := h.vec.With(toPromLabels(labels))
	if ex := ExemplarFromContext(ctx); ex != nil {
		if eo, ok := obs.(prometheus.ExemplarObserver); ok {
			eo.ObserveWithExemplar(val, ex)
			return
		}
	}
	obs.Observe(val)
}
