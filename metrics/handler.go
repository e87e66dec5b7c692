package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ceyewan/reqmetrics/clog"
)

// HandlerOption 配置抓取 Handler
type HandlerOption func(*promhttp.HandlerOpts)

// WithHandlerLogger 抓取过程中的采集错误通过 logger 输出
func WithHandlerLogger(logger clog.Logger) HandlerOption {
	return func(o *promhttp.HandlerOpts) {
		if logger != nil {
			o.ErrorLog = errorLog{logger: logger.WithNamespace("metrics")}
		}
	}
}

// WithMaxRequestsInFlight 限制并发抓取数，0 表示不限制
func WithMaxRequestsInFlight(n int) HandlerOption {
	return func(o *promhttp.HandlerOpts) {
		o.MaxRequestsInFlight = n
	}
}

// Handler 返回暴露 g 中指标的 HTTP Handler
//
// 默认输出 text/plain; version=0.0.4，客户端通过 Accept 协商 OpenMetrics 时输出
// application/openmetrics-text，此时才包含 exemplar。单个 Collector 失败不会中断输出。
func Handler(g prometheus.Gatherer, opts ...HandlerOption) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	ho := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}
	for _, opt := range opts {
		opt(&ho)
	}
	return promhttp.HandlerFor(g, ho)
}

// errorLog 适配 promhttp.Logger
type errorLog struct {
	logger clog.Logger
}

func (l errorLog) Println(v ...any) {
	l.logger.Error("metrics gathering failed", clog.String("detail", fmt.Sprint(v...)))
}
