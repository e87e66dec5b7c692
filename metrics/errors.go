package metrics

import (
	"fmt"
	"slices"

	"github.com/ceyewan/reqmetrics/xerrors"
)

// LabelError 标签名非法或提取函数失败
//
// errors.Is(err, xerrors.ErrLabelResolution) 与 errors.Is(err, xerrors.ErrConfiguration) 均为 true。
type LabelError struct {
	Label string
	Err   error
}

func (e *LabelError) Error() string {
	return fmt.Sprintf("label %q: %v", e.Label, e.Err)
}

func (e *LabelError) Unwrap() []error {
	return []error{xerrors.ErrLabelResolution, e.Err}
}

// SchemaConflictError 同名指标以不同的结构重复注册
type SchemaConflictError struct {
	Name     string
	Existing Desc
	New      Desc
	// Err 底层注册器返回的错误，可能为空
	Err error
}

func (e *SchemaConflictError) Error() string {
	msg := fmt.Sprintf("metric %q already registered as %s%v, requested %s%v",
		e.Name, e.Existing.Kind, e.Existing.Labels, e.New.Kind, e.New.Labels)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{xerrors.ErrSchemaConflict}
	}
	return []error{xerrors.ErrSchemaConflict, e.Err}
}

// sameSchema 判断两个 Desc 是否描述同一个指标：类型、标签集合（顺序无关）与桶边界
func sameSchema(a, b Desc) bool {
	if a.Kind != b.Kind || len(a.Labels) != len(b.Labels) {
		return false
	}
	la, lb := slices.Clone(a.Labels), slices.Clone(b.Labels)
	slices.Sort(la)
	slices.Sort(lb)
	if !slices.Equal(la, lb) {
		return false
	}
	return a.Kind != KindHistogram || slices.Equal(a.Buckets, b.Buckets)
}
