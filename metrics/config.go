package metrics

import (
	"math"
	"regexp"
	"slices"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ceyewan/reqmetrics/xerrors"
)

// OptionalMetric 可选指标
type OptionalMetric string

const (
	// ResponseBodySize 记录 {prefix}_response_body_size_bytes
	ResponseBodySize OptionalMetric = "response_body_size"
	// RequestBodySize 记录 {prefix}_request_body_size_bytes，取值为 Content-Length
	RequestBodySize OptionalMetric = "request_body_size"
)

// HeaderLabel 配置文件中声明的请求头标签
type HeaderLabel struct {
	Header  string   `mapstructure:"header"`
	Allowed []string `mapstructure:"allowed"`
}

// Config 中间件配置，New 之后不可变
//
// 支持 mapstructure 标签，可以从配置文件中加载：
//
//	metrics:
//	  app_name: order-api
//	  prefix: order
//	  group_paths: true
//	  filter_unhandled_paths: true
//	  skip_paths: [/metrics, /healthz]
//	  buckets: [0.01, 0.05, 0.1, 0.5, 1]
//	  optional_metrics: [response_body_size]
//	  static_labels:
//	    region: eu-west-1
//	  header_labels:
//	    user: {header: X-User, allowed: [frank, estelle]}
type Config struct {
	// AppName app_name 标签的取值，默认 "app"
	AppName string `mapstructure:"app_name"`

	// Prefix 指标名前缀，默认 "app"
	Prefix string `mapstructure:"prefix"`

	// Labels 代码中声明的额外标签，按顺序追加在固定标签之后
	Labels []LabelSpec `mapstructure:"-"`

	// StaticLabels 固定值额外标签，按名称排序后追加在 Labels 之后
	StaticLabels map[string]string `mapstructure:"static_labels"`

	// HeaderLabels 请求头额外标签，按名称排序后追加在 StaticLabels 之后
	HeaderLabels map[string]HeaderLabel `mapstructure:"header_labels"`

	// GroupPaths 为 true 时 path 标签使用路由模板（如 /users/{id}）
	GroupPaths bool `mapstructure:"group_paths"`

	// FilterUnhandledPaths 为 true 时不记录未命中任何路由的请求
	FilterUnhandledPaths bool `mapstructure:"filter_unhandled_paths"`

	// SkipPaths 完全不记录的原始路径
	SkipPaths []string `mapstructure:"skip_paths"`

	// Buckets 耗时直方图的桶边界，为空时使用 prometheus.DefBuckets
	Buckets []float64 `mapstructure:"buckets"`

	// AlwaysUseIntStatus 为 true 时把文本状态（如 "Internal Server Error"）转换为数字
	AlwaysUseIntStatus bool `mapstructure:"always_use_int_status"`

	// OptionalMetrics 需要额外记录的可选指标
	OptionalMetrics []OptionalMetric `mapstructure:"optional_metrics"`

	// DefaultErrorStatus handler panic 且尚未写出响应时记录的状态，默认 "500"
	DefaultErrorStatus string `mapstructure:"default_error_status"`

	// Exemplars 为 true 时在计数器与直方图上附加 trace_id exemplar
	Exemplars bool `mapstructure:"exemplars"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AppName:            "app",
		Prefix:             "app",
		DefaultErrorStatus: "500",
	}
}

var metricPrefixRE = regexp.MustCompile(`^[a-zA-Z_:][a-zA-Z0-9_:]*$`)

// validate 设置默认值并验证配置
func (c *Config) validate() error {
	if c.AppName == "" {
		c.AppName = "app"
	}
	if c.Prefix == "" {
		c.Prefix = "app"
	}
	if c.DefaultErrorStatus == "" {
		c.DefaultErrorStatus = "500"
	}

	if !metricPrefixRE.MatchString(c.Prefix) {
		return xerrors.Wrapf(xerrors.ErrConfiguration, "invalid metric prefix %q", c.Prefix)
	}
	if err := validateBuckets(c.Buckets); err != nil {
		return err
	}
	for _, m := range c.OptionalMetrics {
		if m != ResponseBodySize && m != RequestBodySize {
			return xerrors.Wrapf(xerrors.ErrConfiguration, "unknown optional metric %q", m)
		}
	}
	for name, h := range c.HeaderLabels {
		if h.Header == "" {
			return &LabelError{Label: name, Err: xerrors.Wrap(xerrors.ErrInvalidInput, "header is required")}
		}
	}
	return nil
}

// clone 复制配置，切片与 map 不与调用方共享
func (c *Config) clone() *Config {
	cp := *c
	cp.Labels = slices.Clone(c.Labels)
	cp.SkipPaths = slices.Clone(c.SkipPaths)
	cp.Buckets = slices.Clone(c.Buckets)
	cp.OptionalMetrics = slices.Clone(c.OptionalMetrics)
	if c.StaticLabels != nil {
		cp.StaticLabels = make(map[string]string, len(c.StaticLabels))
		for k, v := range c.StaticLabels {
			cp.StaticLabels[k] = v
		}
	}
	if c.HeaderLabels != nil {
		cp.HeaderLabels = make(map[string]HeaderLabel, len(c.HeaderLabels))
		for k, v := range c.HeaderLabels {
			v.Allowed = slices.Clone(v.Allowed)
			cp.HeaderLabels[k] = v
		}
	}
	return &cp
}

// labelSpecs 合并代码与配置文件中声明的额外标签
func (c *Config) labelSpecs() []LabelSpec {
	specs := slices.Clone(c.Labels)
	for _, name := range sortedKeys(c.StaticLabels) {
		specs = append(specs, LabelSpec{Name: name, Value: Static(c.StaticLabels[name])})
	}
	for _, name := range sortedKeys(c.HeaderLabels) {
		h := c.HeaderLabels[name]
		specs = append(specs, LabelSpec{Name: name, Value: FromHeader(h.Header, h.Allowed...)})
	}
	return specs
}

func (c *Config) buckets() []float64 {
	if len(c.Buckets) == 0 {
		return slices.Clone(prometheus.DefBuckets)
	}
	return slices.Clone(c.Buckets)
}

func (c *Config) enabled(m OptionalMetric) bool {
	return slices.Contains(c.OptionalMetrics, m)
}

func validateBuckets(buckets []float64) error {
	if buckets == nil {
		return nil
	}
	if len(buckets) == 0 {
		return xerrors.Wrap(xerrors.ErrInvalidBuckets, "at least one bucket is required")
	}
	for i, b := range buckets {
		if math.IsNaN(b) {
			return xerrors.Wrapf(xerrors.ErrInvalidBuckets, "bucket %d is NaN", i)
		}
		if i > 0 && b <= buckets[i-1] {
			return xerrors.Wrapf(xerrors.ErrInvalidBuckets, "buckets must be strictly increasing: %v <= %v", b, buckets[i-1])
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
