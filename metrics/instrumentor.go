package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/reqmetrics/clog"
)

// Instrumentor 请求指标中间件
//
// 一个请求的生命周期：
//
//	begin    skip 列表与分发前路由探测 -> 解析额外标签 -> 进行中请求数 +1
//	dispatch 调用下游 handler，记录状态码与写出字节数
//	finish   (defer) 进行中请求数 -1 -> 分发后路由与过滤 -> 状态码 -> 计数器/直方图/字节数 -> 重新抛出 panic
type Instrumentor struct {
	cfg        *Config
	set        *MetricSet
	resolver   *LabelResolver
	classifier *PathClassifier
	matcher    RouteMatcher
	exemplar   ExemplarFunc
	logger     clog.Logger
	statusWarn *rate.Sometimes
	routeWarn  *rate.Sometimes
}

// New 创建请求指标中间件
//
// cfg 为 nil 时使用 DefaultConfig()。配置错误（标签名非法、指标结构冲突、桶边界非法）
// 都满足 errors.Is(err, xerrors.ErrConfiguration)。
func New(cfg *Config, opts ...Option) (*Instrumentor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	o := applyOptions(opts...)

	cfg = cfg.clone()
	cfg.Labels = append(cfg.Labels, o.labels...)
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	resolver, err := NewLabelResolver(cfg.labelSpecs()...)
	if err != nil {
		return nil, err
	}

	reg := o.registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	set, err := newMetricSet(reg, cfg, resolver.Names())
	if err != nil {
		return nil, err
	}

	exemplar := o.exemplar
	if exemplar == nil && cfg.Exemplars {
		exemplar = TraceExemplar
	}

	return &Instrumentor{
		cfg:        cfg,
		set:        set,
		resolver:   resolver,
		classifier: NewPathClassifier(cfg.SkipPaths, cfg.GroupPaths, cfg.FilterUnhandledPaths),
		matcher:    o.matcher,
		exemplar:   exemplar,
		logger:     o.logger,
		statusWarn: &rate.Sometimes{First: 1, Interval: time.Minute},
		routeWarn:  &rate.Sometimes{First: 1, Interval: time.Minute},
	}, nil
}

// Must 类似 New，但出错时 panic，仅用于初始化阶段
func Must(cfg *Config, opts ...Option) *Instrumentor {
	in, err := New(cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create metrics middleware: %v", err))
	}
	return in
}

// MetricSet 返回中间件使用的指标
func (in *Instrumentor) MetricSet() *MetricSet {
	return in.set
}

type requestState struct {
	ctx         context.Context
	start       time.Time
	rawPath     string
	pre         RouteMatch
	extra       []Label
	gaugeLabels []Label
	gaugeHeld   bool
}

type outcome struct {
	route         RouteMatch
	status        int
	written       bool
	responseBytes int64
	faulted       bool
}

// begin 请求被跳过时返回 nil
//
// 额外标签解析失败时记录错误日志并以 *LabelError panic，此时没有任何指标被改动。
func (in *Instrumentor) begin(r *http.Request, pre RouteMatch) *requestState {
	rawPath := r.URL.Path
	d := in.classifier.Classify(rawPath, pre)
	if d.Skip {
		return nil
	}

	ctx := r.Context()
	extra, err := in.resolver.Resolve(r)
	if err != nil {
		in.logger.ErrorContext(ctx, "failed to resolve metric labels",
			clog.String("method", r.Method),
			clog.String("path", rawPath),
			clog.Error(err),
		)
		panic(err)
	}

	st := &requestState{
		ctx:     ctx,
		start:   time.Now(),
		rawPath: rawPath,
		pre:     pre,
		extra:   extra,
		gaugeLabels: []Label{
			{Key: LabelAppName, Value: in.cfg.AppName},
			{Key: LabelMethod, Value: r.Method},
			{Key: LabelPath, Value: d.Path},
		},
	}
	in.safely(ctx, "inc_in_progress", func() {
		in.set.IncInProgress(ctx, st.gaugeLabels...)
		st.gaugeHeld = true
	})
	return st
}

// finish 在 defer 中调用，内部故障只记录日志
func (in *Instrumentor) finish(st *requestState, r *http.Request, out outcome) {
	elapsed := time.Since(st.start)
	if st.gaugeHeld {
		in.safely(st.ctx, "dec_in_progress", func() {
			in.set.DecInProgress(st.ctx, st.gaugeLabels...)
		})
	}
	in.safely(st.ctx, "record", func() {
		in.record(st, r, out, elapsed)
	})
}

func (in *Instrumentor) record(st *requestState, r *http.Request, out outcome, elapsed time.Duration) {
	route := st.pre
	if route.State == RouteUnknown {
		route = out.route
	}
	d := in.classifier.Classify(st.rawPath, route)
	if d.Skip {
		return
	}

	status := statusLabel(out.status, out.faulted, out.written, in.cfg.DefaultErrorStatus)
	if in.cfg.AlwaysUseIntStatus {
		status = in.intStatus(st.ctx, status)
	}

	labels := make([]Label, 0, 4+in.resolver.Len())
	labels = append(labels,
		Label{Key: LabelAppName, Value: in.cfg.AppName},
		Label{Key: LabelMethod, Value: r.Method},
		Label{Key: LabelPath, Value: d.Path},
		Label{Key: LabelStatusCode, Value: status},
	)
	labels = append(labels, st.extra...)

	ctx := st.ctx
	if in.exemplar != nil {
		ctx = ContextWithExemplar(ctx, in.exemplar(r))
	}

	in.set.IncRequests(ctx, labels...)
	in.set.ObserveDuration(ctx, elapsed.Seconds(), labels...)
	in.set.AddBodySize(ctx, ResponseBodySize, out.responseBytes, labels...)
	in.set.AddBodySize(ctx, RequestBodySize, r.ContentLength, labels...)
}

func (in *Instrumentor) intStatus(ctx context.Context, status string) string {
	if s, ok := coerceStatus(status); ok {
		return s
	}
	in.statusWarn.Do(func() {
		in.logger.WarnContext(ctx, "status code is not numeric, recording it as text",
			clog.String("status_code", status))
	})
	return status
}

// warnRouteUnknown 分发前无法得知路由时，GroupPaths 与 FilterUnhandledPaths
// 对进行中请求数不生效，提示调用方配置 WithRouteMatcher
func (in *Instrumentor) warnRouteUnknown(r *http.Request) {
	if !in.cfg.GroupPaths && !in.cfg.FilterUnhandledPaths {
		return
	}
	in.routeWarn.Do(func() {
		in.logger.WarnContext(r.Context(), "route is unknown before dispatch, configure WithRouteMatcher to group or filter in-progress requests",
			clog.String("path", r.URL.Path))
	})
}

func (in *Instrumentor) safely(ctx context.Context, op string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			in.logger.ErrorContext(ctx, "request instrumentation failed",
				clog.String("op", op),
				clog.Any("panic", p),
			)
		}
	}()
	fn()
}
