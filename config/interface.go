// Package config 为 reqmetrics 提供统一的配置加载能力，基于 Viper 实现。
//
// 特性：
//   - 多源配置加载：YAML/JSON 文件、环境变量、.env 文件
//   - 配置优先级：环境变量 > .env > 环境特定配置 > 基础配置
//   - 日志级别等少量运行期参数支持通过 Watch 热更新
//
// 中间件本身的配置在构造后不可变，热更新只适用于 clog 级别这类外围参数。
//
// 基本使用：
//
//	loader, _ := config.New(&config.Config{Name: "exporter", EnvPrefix: "REQMETRICS"})
//	if err := loader.Load(ctx); err != nil {
//		panic(err)
//	}
//
//	var mcfg metrics.Config
//	_ = loader.UnmarshalKey("metrics", &mcfg)
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 加载配置并初始化内部状态
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置文件中某个 key 的变化，通过 context 取消监听
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Timestamp time.Time
}
