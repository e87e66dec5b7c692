// Package xerrors 提供 reqmetrics 统一的错误处理工具。
//
// 除了错误包装之外，这里还定义了中间件使用的错误分类：
// 所有配置类故障（标签解析失败、指标身份冲突、非法桶边界）都可以通过
// errors.Is(err, ErrConfiguration) 统一识别。
package xerrors

import (
	"errors"
	"fmt"
)

// 标准库函数再导出
var (
	New    = errors.New
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

var (
	// ErrInvalidInput 参数或配置格式无效
	ErrInvalidInput = New("invalid input")

	// ErrConfiguration 配置故障的根错误，启动期或首次使用时暴露，不做重试
	ErrConfiguration = New("configuration fault")

	// ErrLabelResolution 标签名非法或提取函数失败
	ErrLabelResolution = fmt.Errorf("%w: label resolution failed", ErrConfiguration)

	// ErrSchemaConflict 同名指标以不同的类型或标签集合重复注册
	ErrSchemaConflict = fmt.Errorf("%w: instrument schema conflict", ErrConfiguration)

	// ErrInvalidBuckets 直方图桶边界为空、非递增或包含 NaN
	ErrInvalidBuckets = fmt.Errorf("%w: invalid histogram buckets", ErrConfiguration)

	// ErrClosed 组件已关闭
	ErrClosed = New("component closed")
)

// Wrap 用上下文信息包装错误，保留错误链。
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf 用格式化的上下文信息包装错误。
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// IsConfiguration 判断错误是否属于配置故障。
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// Must 如果 err 不为 nil，则 panic。仅用于初始化阶段。
func Must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("must: %v", err))
	}
	return v
}

// MultiError 合并多个错误。
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%v (and %d more errors)", m.Errors[0], len(m.Errors)-1)
}

func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Combine 将多个错误合并为一个，nil 会被忽略。
func Combine(errs ...error) error {
	var nonNil []error
	for _, err := range errs {
		if err != nil {
			nonNil = append(nonNil, err)
		}
	}
	switch len(nonNil) {
	case 0:
		return nil
	case 1:
		return nonNil[0]
	default:
		return &MultiError{Errors: nonNil}
	}
}
