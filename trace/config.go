package trace

// Config 链路追踪配置
//
// 中间件从请求 context 中读取当前 Span 作为直方图 exemplar 的 trace_id，
// 因此示例程序需要先通过 Init 或 Discard 安装全局 TracerProvider。
type Config struct {
	ServiceName string  `mapstructure:"service_name"`
	Endpoint    string  `mapstructure:"endpoint"`
	Sampler     float64 `mapstructure:"sampler"`
	Batcher     string  `mapstructure:"batcher"`
	Insecure    bool    `mapstructure:"insecure"`
}

// DefaultConfig 返回默认配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     "batch",
		Insecure:    true,
	}
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		return errInvalid("service_name is required")
	}
	if c.Endpoint == "" {
		return errInvalid("endpoint is required")
	}
	if c.Sampler < 0 || c.Sampler > 1 {
		return errInvalidf("sampler must be between 0 and 1, got %v", c.Sampler)
	}
	if c.Batcher != "" && c.Batcher != "batch" && c.Batcher != "simple" {
		return errInvalidf("batcher must be \"batch\" or \"simple\", got %q", c.Batcher)
	}
	return nil
}
