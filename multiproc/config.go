// Package multiproc 让多个工作进程共享一份抓取结果。
//
// 每个进程把指标写入私有的 prometheus.Registry，后台定时把快照写入共享存储：
// 计数器与直方图写入 counter_<pid>_<instance>，仪表盘写入 gauge_live_<pid>_<instance>。
// 抓取端读取全部快照并合并：计数器与直方图按标签求和，仪表盘对存活进程的快照求和。
//
// 存储可以是共享目录（DirStore）或 Redis hash（RedisStore）。
//
//	bridge, err := multiproc.FromEnv(multiproc.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer bridge.Close(ctx)
//
//	reg := metrics.NewMultiprocessRegistry(bridge)
package multiproc

import (
	"os"
	"time"
)

const (
	// EnvDir 多进程快照目录的环境变量
	EnvDir = "PROMETHEUS_MULTIPROC_DIR"
	// legacyEnvDir 旧版小写环境变量，仍然识别
	legacyEnvDir = "prometheus_multiproc_dir"

	defaultFlushInterval = time.Second
)

// Config 多进程桥接配置
type Config struct {
	// Dir 快照目录，使用 WithStore 注入其他存储时可以为空
	Dir string `mapstructure:"dir"`
	// FlushInterval 后台写快照的间隔，默认 1s，负值表示只在 Flush/Close/抓取时写入
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func (c *Config) validate() {
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
}

// DirFromEnv 读取快照目录环境变量，未设置时返回空串
func DirFromEnv() string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir
	}
	return os.Getenv(legacyEnvDir)
}
