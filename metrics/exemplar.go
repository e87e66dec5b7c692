package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// ExemplarFunc 计算请求的 exemplar 标签，返回 nil 表示不附加
type ExemplarFunc func(r *http.Request) prometheus.Labels

type exemplarKey struct{}

// ContextWithExemplar 把 exemplar 标签放入 ctx，供支持 exemplar 的后端读取
func ContextWithExemplar(ctx context.Context, labels prometheus.Labels) context.Context {
	if len(labels) == 0 {
		return ctx
	}
	return context.WithValue(ctx, exemplarKey{}, labels)
}

// ExemplarFromContext 读取 ContextWithExemplar 放入的 exemplar 标签
func ExemplarFromContext(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	labels, _ := ctx.Value(exemplarKey{}).(prometheus.Labels)
	return labels
}

// TraceExemplar 使用当前 Span 的 trace_id 作为 exemplar，Span 未采样时不附加
func TraceExemplar(r *http.Request) prometheus.Labels {
	sc := oteltrace.SpanContextFromContext(r.Context())
	if !sc.IsValid() || !sc.IsSampled() {
		return nil
	}
	return prometheus.Labels{"trace_id": sc.TraceID().String()}
}
