package multiproc

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/reqmetrics/xerrors"
)

type worker struct {
	bridge   *Bridge
	requests *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
}

func newWorker(t *testing.T, dir string, pid int) *worker {
	t.Helper()
	b, err := New(&Config{Dir: dir, FlushInterval: -1}, WithPID(pid))
	require.NoError(t, err)

	w := &worker{
		bridge:   b,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{Name: "app_requests_total", Help: "Total HTTP requests"}, []string{"path"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "app_requests_in_progress", Help: "in progress"}, []string{"path"}),
	}
	b.Registerer().MustRegister(w.requests, w.inFlight)
	return w
}

func value(t *testing.T, g prometheus.Gatherer, name string) (float64, bool) {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name || len(mf.GetMetric()) == 0 {
			continue
		}
		m := mf.GetMetric()[0]
		if mf.GetType() == dto.MetricType_GAUGE {
			return m.GetGauge().GetValue(), true
		}
		return m.GetCounter().GetValue(), true
	}
	return 0, false
}

func TestBridge_MergesWorkers(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	w1 := newWorker(t, dir, 101)
	w2 := newWorker(t, dir, 102)

	w1.requests.WithLabelValues("/a").Add(2)
	w2.requests.WithLabelValues("/a").Add(5)
	w1.inFlight.WithLabelValues("/a").Inc()
	w2.inFlight.WithLabelValues("/a").Add(2)
	require.NoError(t, w2.bridge.Flush(ctx))

	total, ok := value(t, w1.bridge.Gatherer(), "app_requests_total")
	require.True(t, ok)
	assert.Equal(t, 7.0, total)

	live, ok := value(t, w1.bridge.Gatherer(), "app_requests_in_progress")
	require.True(t, ok)
	assert.Equal(t, 3.0, live, "仪表盘对存活进程求和")

	t.Run("标记进程死亡只删除仪表盘", func(t *testing.T) {
		require.NoError(t, w1.bridge.MarkProcessDead(ctx, 102))

		live, _ := value(t, w1.bridge.Gatherer(), "app_requests_in_progress")
		assert.Equal(t, 1.0, live)
		total, _ := value(t, w1.bridge.Gatherer(), "app_requests_total")
		assert.Equal(t, 7.0, total)
	})

	t.Run("关闭后计数器保留", func(t *testing.T) {
		w1.requests.WithLabelValues("/a").Inc()
		require.NoError(t, w1.bridge.Close(ctx))
		require.NoError(t, w1.bridge.Close(ctx), "重复关闭")

		total, _ := value(t, w2.bridge.Gatherer(), "app_requests_total")
		assert.Equal(t, 8.0, total)
		live, _ := value(t, w2.bridge.Gatherer(), "app_requests_in_progress")
		assert.Equal(t, 2.0, live)
	})

	t.Run("关闭后不再写入快照", func(t *testing.T) {
		w1.requests.WithLabelValues("/a").Add(100)
		assert.ErrorIs(t, w1.bridge.Flush(ctx), xerrors.ErrClosed)

		total, _ := value(t, w1.bridge.Gatherer(), "app_requests_total")
		assert.Equal(t, 8.0, total, "抓取仍然合并已有快照")
	})
}

func TestBridge_BackgroundFlush(t *testing.T) {
	dir := t.TempDir()
	b, err := New(&Config{Dir: dir, FlushInterval: 10 * time.Millisecond}, WithPID(1))
	require.NoError(t, err)
	defer b.Close(context.Background())

	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "bg_total", Help: "bg"})
	b.Registerer().MustRegister(c)
	c.Inc()

	store, err := NewDirStore(dir)
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		entries, err := store.List(context.Background())
		return err == nil && len(entries) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvDir, "")
	t.Setenv(legacyEnvDir, "")
	_, err := FromEnv()
	assert.Error(t, err)

	t.Setenv(EnvDir, t.TempDir())
	b, err := FromEnv()
	require.NoError(t, err)
	assert.NoError(t, b.Close(context.Background()))
}
