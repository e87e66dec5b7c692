package multiproc

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/ceyewan/reqmetrics/clog"
	"github.com/ceyewan/reqmetrics/xerrors"
)

// Bridge 一个进程在多进程模式下的指标出口
type Bridge struct {
	cfg      Config
	store    Store
	reg      *prometheus.Registry
	pid      int
	instance string
	logger   clog.Logger

	flushMu sync.Mutex
	closed  bool

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// New 创建多进程桥接并启动后台 flusher
func New(cfg *Config, opts ...Option) (*Bridge, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.validate()

	o := &options{logger: clog.Discard(), pid: os.Getpid()}
	for _, opt := range opts {
		opt(o)
	}

	store := o.store
	if store == nil {
		ds, err := NewDirStore(c.Dir)
		if err != nil {
			return nil, err
		}
		store = ds
	}

	b := &Bridge{
		cfg:      c,
		store:    store,
		reg:      prometheus.NewRegistry(),
		pid:      o.pid,
		instance: uuid.NewString()[:8],
		logger:   o.logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	if c.FlushInterval > 0 {
		go b.loop()
	} else {
		close(b.done)
	}

	b.logger.Info("multiprocess bridge started",
		clog.Int("pid", b.pid),
		clog.String("instance", b.instance),
		clog.Duration("flush_interval", c.FlushInterval),
	)
	return b, nil
}

// FromEnv 使用 PROMETHEUS_MULTIPROC_DIR 指定的目录创建桥接
func FromEnv(opts ...Option) (*Bridge, error) {
	dir := DirFromEnv()
	if dir == "" {
		return nil, xerrors.Wrapf(xerrors.ErrInvalidInput, "%s is not set", EnvDir)
	}
	return New(&Config{Dir: dir}, opts...)
}

// Registerer 本进程的私有注册器，中间件的指标注册在这里
func (b *Bridge) Registerer() prometheus.Registerer {
	return b.reg
}

// PID 快照使用的进程号
func (b *Bridge) PID() int {
	return b.pid
}

func (b *Bridge) key(kind Kind) Key {
	return Key{Kind: kind, PID: b.pid, Instance: b.instance}
}

func (b *Bridge) loop() {
	defer close(b.done)

	ticker := time.NewTicker(b.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-ticker.C:
			if err := b.Flush(context.Background()); err != nil {
				b.logger.Warn("failed to flush metrics snapshot", clog.Error(err))
			}
		}
	}
}

// Flush 立即把本进程的指标写入存储，Close 之后返回 xerrors.ErrClosed
func (b *Bridge) Flush(ctx context.Context) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.closed {
		return xerrors.ErrClosed
	}
	return b.flushLocked(ctx)
}

func (b *Bridge) flushLocked(ctx context.Context) error {
	mfs, err := b.reg.Gather()
	if err != nil {
		return xerrors.Wrap(err, "failed to gather local metrics")
	}

	var counters, gauges []*dto.MetricFamily
	for _, mf := range mfs {
		if mf.GetType() == dto.MetricType_GAUGE {
			gauges = append(gauges, mf)
		} else {
			counters = append(counters, mf)
		}
	}

	counterData, err := encodeFamilies(counters)
	if err != nil {
		return err
	}
	gaugeData, err := encodeFamilies(gauges)
	if err != nil {
		return err
	}

	return xerrors.Combine(
		b.store.Put(ctx, b.key(KindCounter), counterData),
		b.store.Put(ctx, b.key(KindGaugeLive), gaugeData),
	)
}

// Gatherer 抓取端使用的 Gatherer，先写入本进程快照，再合并全部快照
func (b *Bridge) Gatherer() prometheus.Gatherer {
	return prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		ctx := context.Background()
		if err := b.Flush(ctx); err != nil && !xerrors.Is(err, xerrors.ErrClosed) {
			b.logger.Warn("failed to flush before gathering", clog.Error(err))
		}
		return b.collect(ctx)
	})
}

func (b *Bridge) collect(ctx context.Context) ([]*dto.MetricFamily, error) {
	entries, err := b.store.List(ctx)
	if err != nil {
		return nil, err
	}

	snapshots := make([][]*dto.MetricFamily, 0, len(entries))
	for _, e := range entries {
		mfs, err := decodeFamilies(e.Data)
		if err != nil {
			b.logger.Warn("skipping corrupt snapshot", clog.String("key", e.Key.String()), clog.Error(err))
			continue
		}
		snapshots = append(snapshots, mfs)
	}
	return merge(snapshots), nil
}

// MarkProcessDead 删除已退出进程的仪表盘快照，计数器快照保留
func (b *Bridge) MarkProcessDead(ctx context.Context, pid int) error {
	entries, err := b.store.List(ctx)
	if err != nil {
		return err
	}
	var dead []Key
	for _, e := range entries {
		if e.Key.Kind == KindGaugeLive && e.Key.PID == pid {
			dead = append(dead, e.Key)
		}
	}
	return b.store.Remove(ctx, dead...)
}

// Close 停止 flusher，写入最后一份计数器快照并删除本进程的仪表盘快照
//
// 多次调用只生效一次。
func (b *Bridge) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		select {
		case <-b.done:
		default:
			close(b.stop)
			select {
			case <-b.done:
			case <-ctx.Done():
				b.closeErr = ctx.Err()
				return
			}
		}

		b.flushMu.Lock()
		flushErr := b.flushLocked(ctx)
		b.closed = true
		b.flushMu.Unlock()

		b.closeErr = xerrors.Combine(
			flushErr,
			b.store.Remove(ctx, b.key(KindGaugeLive)),
		)
		b.logger.Info("multiprocess bridge closed", clog.Int("pid", b.pid))
	})
	return b.closeErr
}
