package metrics

import (
	"context"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/reqmetrics/xerrors"
)

// OTelConfig OpenTelemetry 后端配置
type OTelConfig struct {
	// ServiceName 作为 Resource 的 service.name
	ServiceName string `mapstructure:"service_name"`
	// Version 作为 Resource 的 service.version
	Version string `mapstructure:"version"`
	// Registerer OTel Prometheus Exporter 注册到的注册器，为 nil 时使用 prometheus.DefaultRegisterer
	Registerer prometheus.Registerer `mapstructure:"-"`
	// RuntimeMetrics 为 true 时同时采集 Go 运行时指标
	RuntimeMetrics bool `mapstructure:"runtime_metrics"`
}

// otelBackend 通过 OTel SDK 记录指标，再由 OTel Prometheus Exporter 暴露
//
// exemplar 由 SDK 根据 ctx 中已采样的 Span 自动附加，不读取 ContextWithExemplar。
type otelBackend struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
}

// NewOTelBackend 创建 OpenTelemetry 后端
//
// 不会设置全局 MeterProvider；调用方负责在退出时调用 Shutdown。
func NewOTelBackend(cfg *OTelConfig) (Backend, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "otel config is required")
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.Version),
		),
	)
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create resource")
	}

	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	exporter, err := otelprom.New(otelprom.WithRegisterer(reg))
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to create prometheus exporter")
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)

	if cfg.RuntimeMetrics {
		if err := runtime.Start(runtime.WithMeterProvider(mp)); err != nil {
			_ = mp.Shutdown(ctx)
			return nil, xerrors.Wrap(err, "failed to start runtime metrics")
		}
	}

	return &otelBackend{
		meter:    mp.Meter("github.com/ceyewan/reqmetrics"),
		provider: mp,
	}, nil
}

func (b *otelBackend) Counter(desc Desc) (Counter, error) {
	// Exporter 会为单调计数器补上 _total 后缀
	c, err := b.meter.Float64Counter(strings.TrimSuffix(desc.Name, "_total"), metric.WithDescription(desc.Help))
	if err != nil {
		return nil, &SchemaConflictError{Name: desc.Name, New: desc, Err: err}
	}
	return &otelCounter{c: c}, nil
}

func (b *otelBackend) Gauge(desc Desc) (Gauge, error) {
	g, err := b.meter.Int64UpDownCounter(desc.Name, metric.WithDescription(desc.Help))
	if err != nil {
		return nil, &SchemaConflictError{Name: desc.Name, New: desc, Err: err}
	}
	return &otelGauge{g: g}, nil
}

func (b *otelBackend) Histogram(desc Desc) (Histogram, error) {
	h, err := b.meter.Float64Histogram(desc.Name,
		metric.WithDescription(desc.Help),
		metric.WithExplicitBucketBoundaries(desc.Buckets...),
	)
	if err != nil {
		return nil, &SchemaConflictError{Name: desc.Name, New: desc, Err: err}
	}
	return &otelHistogram{h: h}, nil
}

// Shutdown 关闭 MeterProvider，刷新所有指标
func (b *otelBackend) Shutdown(ctx context.Context) error {
	return b.provider.Shutdown(ctx)
}

type otelCounter struct {
	c metric.Float64Counter
}

func (c *otelCounter) Inc(ctx context.Context, labels ...Label) {
	c.c.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (c *otelCounter) Add(ctx context.Context, val float64, labels ...Label) {
	c.c.Add(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

type otelGauge struct {
	g metric.Int64UpDownCounter
}

func (g *otelGauge) Inc(ctx context.Context, labels ...Label) {
	g.g.Add(ctx, 1, metric.WithAttributes(toAttributes(labels)...))
}

func (g *otelGauge) Dec(ctx context.Context, labels ...Label) {
	g.g.Add(ctx, -1, metric.WithAttributes(toAttributes(labels)...))
}

type otelHistogram struct {
	h metric.Float64Histogram
}

func (h *otelHistogram) Record(ctx context.Context, val float64, labels ...Label) {
	h.h.Record(ctx, val, metric.WithAttributes(toAttributes(labels)...))
}

func toAttributes(labels []Label) []attribute.KeyValue {
	if len(labels) == 0 {
		return nil
	}
	attrs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		attrs[i] = attribute.String(l.Key, l.Value)
	}
	return attrs
}
