package metrics

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"

	"github.com/ceyewan/reqmetrics/xerrors"
)

// Label 指标标签
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数，创建一个 Label 实例
//
//	counter.Inc(ctx, metrics.L("method", "GET"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

// Extractor 从请求中提取标签值
//
// 提取函数只能读取请求，不能修改请求或消费请求体。返回 error 或 panic 都会被转成
// *LabelError，中间件在分发请求之前以该错误 panic。
type Extractor func(r *http.Request) (string, error)

// LabelValue 额外标签的取值方式：固定值或按请求计算
type LabelValue struct {
	dynamic   bool
	static    string
	extractor Extractor
}

// Static 固定值标签，非字符串值通过 fmt.Sprint 转换
func Static(v any) LabelValue {
	return LabelValue{static: fmt.Sprint(v)}
}

// Dynamic 每个请求调用一次 fn 计算标签值，结果不缓存
func Dynamic(fn Extractor) LabelValue {
	return LabelValue{dynamic: true, extractor: fn}
}

// DynamicString 与 Dynamic 相同，用于不会失败的提取函数
func DynamicString(fn func(r *http.Request) string) LabelValue {
	if fn == nil {
		return Dynamic(nil)
	}
	return Dynamic(func(r *http.Request) (string, error) {
		return fn(r), nil
	})
}

// FromHeader 从请求头读取标签值（大小写不敏感）
//
// allowed 非空时，不在白名单中的取值统一记为空串，避免高基数：
//
//	metrics.FromHeader("X-User", "frank", "estelle")
func FromHeader(header string, allowed ...string) LabelValue {
	allowed = slices.Clone(allowed)
	return Dynamic(func(r *http.Request) (string, error) {
		v := r.Header.Get(header)
		if len(allowed) > 0 && !slices.Contains(allowed, v) {
			return "", nil
		}
		return v, nil
	})
}

// IsDynamic 是否为按请求计算的标签
func (v LabelValue) IsDynamic() bool {
	return v.dynamic
}

// LabelSpec 额外标签定义，按声明顺序追加在固定标签之后
type LabelSpec struct {
	Name  string
	Value LabelValue
}

var labelNameRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var reservedLabels = []string{LabelAppName, LabelMethod, LabelPath, LabelStatusCode}

// LabelResolver 在每个请求上计算额外标签的值
type LabelResolver struct {
	specs []LabelSpec
	names []string
}

// NewLabelResolver 校验标签定义并创建解析器
//
// 标签名需满足 Prometheus 命名规则、不能以 "__" 开头、不能重复、不能与固定标签重名。
func NewLabelResolver(specs ...LabelSpec) (*LabelResolver, error) {
	r := &LabelResolver{
		specs: slices.Clone(specs),
		names: make([]string, 0, len(specs)),
	}
	for _, spec := range specs {
		if err := validateLabelName(spec.Name, r.names); err != nil {
			return nil, err
		}
		if spec.Value.dynamic && spec.Value.extractor == nil {
			return nil, &LabelError{Label: spec.Name, Err: xerrors.Wrap(xerrors.ErrInvalidInput, "nil extractor")}
		}
		r.names = append(r.names, spec.Name)
	}
	return r, nil
}

func validateLabelName(name string, seen []string) error {
	switch {
	case !labelNameRE.MatchString(name):
		return &LabelError{Label: name, Err: xerrors.Wrap(xerrors.ErrInvalidInput, "invalid label name")}
	case strings.HasPrefix(name, "__"):
		return &LabelError{Label: name, Err: xerrors.Wrap(xerrors.ErrInvalidInput, "label names beginning with __ are reserved")}
	case slices.Contains(reservedLabels, name):
		return &LabelError{Label: name, Err: xerrors.Wrap(xerrors.ErrInvalidInput, "label name collides with a built-in label")}
	case slices.Contains(seen, name):
		return &LabelError{Label: name, Err: xerrors.Wrap(xerrors.ErrInvalidInput, "duplicate label name")}
	}
	return nil
}

// Names 返回额外标签名，顺序与声明顺序一致
func (r *LabelResolver) Names() []string {
	return slices.Clone(r.names)
}

// Len 额外标签个数
func (r *LabelResolver) Len() int {
	return len(r.specs)
}

// Resolve 计算当前请求的额外标签
func (r *LabelResolver) Resolve(req *http.Request) ([]Label, error) {
	if len(r.specs) == 0 {
		return nil, nil
	}
	labels := make([]Label, 0, len(r.specs))
	for _, spec := range r.specs {
		if !spec.Value.IsDynamic() {
			labels = append(labels, Label{Key: spec.Name, Value: spec.Value.static})
			continue
		}
		v, err := extract(spec, req)
		if err != nil {
			return nil, err
		}
		labels = append(labels, Label{Key: spec.Name, Value: v})
	}
	return labels, nil
}

// extract 调用提取函数，把 error 与 panic 统一包装为 *LabelError
func extract(spec LabelSpec, req *http.Request) (v string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &LabelError{Label: spec.Name, Err: fmt.Errorf("extractor panicked: %v", p)}
		}
	}()

	v, err = spec.Value.extractor(req)
	if err != nil {
		return "", &LabelError{Label: spec.Name, Err: err}
	}
	return v, nil
}
