package metrics

import (
	"context"
	"slices"
)

// MetricSet 一个中间件实例使用的全部指标
type MetricSet struct {
	requests     Counter
	duration     Histogram
	inProgress   Gauge
	responseBody Counter
	requestBody  Counter
}

// NewMetricSet 在 reg 中获取或创建 cfg 描述的指标
//
// 请求类指标的标签为 app_name, method, path, status_code 加上 cfg 中声明的额外标签；
// 进行中请求数只有 app_name, method, path。
func NewMetricSet(reg *Registry, cfg *Config) (*MetricSet, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg = cfg.clone()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	resolver, err := NewLabelResolver(cfg.labelSpecs()...)
	if err != nil {
		return nil, err
	}
	return newMetricSet(reg, cfg, resolver.Names())
}

func newMetricSet(reg *Registry, cfg *Config, extra []string) (*MetricSet, error) {
	gaugeLabels := []string{LabelAppName, LabelMethod, LabelPath}
	requestLabels := append(slices.Clone(gaugeLabels), LabelStatusCode)
	requestLabels = append(requestLabels, extra...)

	s := &MetricSet{}
	var err error

	s.requests, err = reg.Counter(Desc{
		Name:   cfg.Prefix + "_requests_total",
		Help:   "Total HTTP requests",
		Labels: requestLabels,
	})
	if err != nil {
		return nil, err
	}

	s.duration, err = reg.Histogram(Desc{
		Name:    cfg.Prefix + "_request_duration_seconds",
		Help:    "HTTP request duration, in seconds",
		Labels:  requestLabels,
		Buckets: cfg.buckets(),
	})
	if err != nil {
		return nil, err
	}

	s.inProgress, err = reg.Gauge(Desc{
		Name:   cfg.Prefix + "_requests_in_progress",
		Help:   "Total HTTP requests currently in progress",
		Labels: gaugeLabels,
	})
	if err != nil {
		return nil, err
	}

	if cfg.enabled(ResponseBodySize) {
		s.responseBody, err = reg.Counter(Desc{
			Name:   cfg.Prefix + "_response_body_size_bytes",
			Help:   "Total HTTP response body bytes",
			Labels: requestLabels,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.enabled(RequestBodySize) {
		s.requestBody, err = reg.Counter(Desc{
			Name:   cfg.Prefix + "_request_body_size_bytes",
			Help:   "Total HTTP request body bytes",
			Labels: requestLabels,
		})
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// IncRequests requests_total 加一
func (s *MetricSet) IncRequests(ctx context.Context, labels ...Label) {
	s.requests.Inc(ctx, labels...)
}

// ObserveDuration 记录一次请求耗时（秒）
func (s *MetricSet) ObserveDuration(ctx context.Context, seconds float64, labels ...Label) {
	s.duration.Record(ctx, seconds, labels...)
}

// IncInProgress 进行中请求数加一
func (s *MetricSet) IncInProgress(ctx context.Context, labels ...Label) {
	s.inProgress.Inc(ctx, labels...)
}

// DecInProgress 进行中请求数减一，标签必须与 IncInProgress 一致
func (s *MetricSet) DecInProgress(ctx context.Context, labels ...Label) {
	s.inProgress.Dec(ctx, labels...)
}

// Enabled 可选指标是否启用
func (s *MetricSet) Enabled(kind OptionalMetric) bool {
	switch kind {
	case ResponseBodySize:
		return s.responseBody != nil
	case RequestBodySize:
		return s.requestBody != nil
	default:
		return false
	}
}

// AddBodySize 累加请求体或响应体字节数，未启用的指标或负值会被忽略
func (s *MetricSet) AddBodySize(ctx context.Context, kind OptionalMetric, n int64, labels ...Label) {
	if n < 0 {
		return
	}
	switch kind {
	case ResponseBodySize:
		if s.responseBody != nil {
			s.responseBody.Add(ctx, float64(n), labels...)
		}
	case RequestBodySize:
		if s.requestBody != nil {
			s.requestBody.Add(ctx, float64(n), labels...)
		}
	}
}
