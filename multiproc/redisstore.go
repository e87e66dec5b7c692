package multiproc

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/reqmetrics/clog"
	"github.com/ceyewan/reqmetrics/xerrors"
)

// RedisStore 把快照保存在一个 Redis hash 中，field 为快照 key
//
// 适用于工作进程分布在多台主机、无法共享目录的场景。写操作经过熔断器，
// Redis 持续不可用时快速失败，不阻塞后台 flush。
type RedisStore struct {
	client redis.UniversalClient
	hash   string
	cb     *gobreaker.CircuitBreaker[any]
}

// RedisConfig Redis 存储配置
type RedisConfig struct {
	// Namespace hash 名称前缀，最终 key 为 <namespace>:multiproc
	Namespace string `mapstructure:"namespace"`
	// MaxFailures 连续失败多少次后熔断，默认 5
	MaxFailures uint32 `mapstructure:"max_failures"`
	// OpenTimeout 熔断后多久进入半开状态，默认 30s
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(client redis.UniversalClient, cfg *RedisConfig, logger clog.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "redis client is required")
	}
	if cfg == nil {
		cfg = &RedisConfig{}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "reqmetrics"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = clog.Discard()
	}

	hash := cfg.Namespace + ":multiproc"
	maxFailures := cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        hash,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("redis snapshot store state changed",
				clog.String("name", name),
				clog.String("from", from.String()),
				clog.String("to", to.String()),
			)
		},
	})

	return &RedisStore{client: client, hash: hash, cb: cb}, nil
}

func (s *RedisStore) Put(ctx context.Context, key Key, data []byte) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.HSet(ctx, s.hash, key.String(), data).Err()
	})
	if err != nil {
		return xerrors.Wrapf(err, "failed to store snapshot %s", key)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	values, err := s.client.HGetAll(ctx, s.hash).Result()
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to list snapshots")
	}
	entries := make([]Entry, 0, len(values))
	for field, v := range values {
		key, ok := parseKey(field)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Key: key, Data: []byte(v)})
	}
	return entries, nil
}

func (s *RedisStore) Remove(ctx context.Context, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = k.String()
	}
	_, err := s.cb.Execute(func() (any, error) {
		return nil, s.client.HDel(ctx, s.hash, fields...).Err()
	})
	if err != nil {
		return xerrors.Wrap(err, "failed to remove snapshots")
	}
	return nil
}
