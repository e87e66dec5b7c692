package multiproc

import "github.com/ceyewan/reqmetrics/clog"

// Option 配置 Bridge 的选项函数
type Option func(*options)

type options struct {
	logger clog.Logger
	store  Store
	pid    int
}

// WithLogger 注入日志记录器，组件会自动添加 "multiproc" 命名空间
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("multiproc")
		}
	}
}

// WithStore 使用自定义快照存储，例如 RedisStore
func WithStore(s Store) Option {
	return func(o *options) {
		o.store = s
	}
}

// WithPID 覆盖进程号，主要用于测试中模拟多个进程
func WithPID(pid int) Option {
	return func(o *options) {
		o.pid = pid
	}
}
