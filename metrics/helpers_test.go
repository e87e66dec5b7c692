package metrics

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/reqmetrics/clog"
)

func newTestRegistry() (*Registry, *prometheus.Registry) {
	promReg := prometheus.NewRegistry()
	return NewPrometheusRegistry(promReg), promReg
}

func newTestInstrumentor(t *testing.T, cfg *Config, opts ...Option) (*Instrumentor, *prometheus.Registry) {
	t.Helper()
	reg, promReg := newTestRegistry()
	in, err := New(cfg, append([]Option{WithRegistry(reg)}, opts...)...)
	require.NoError(t, err)
	return in, promReg
}

func newBufferLogger(t *testing.T) (clog.Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger, err := clog.New(&clog.Config{Level: "debug", Format: "json", Output: "buffer"}, clog.WithBuffer(buf))
	require.NoError(t, err)
	return logger, buf
}

// findMetric 查找名称为 name 且包含全部 labels 的样本
func findMetric(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if hasLabels(m, labels) {
				return m
			}
		}
	}
	return nil
}

func hasLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// seriesCount 返回指标族中的样本数，指标族不存在时为 0
func seriesCount(t *testing.T, g prometheus.Gatherer, name string) int {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == name {
			return len(mf.GetMetric())
		}
	}
	return 0
}

func requestLabels(method, path, status string) map[string]string {
	return map[string]string{
		LabelAppName:    "app",
		LabelMethod:     method,
		LabelPath:       path,
		LabelStatusCode: status,
	}
}

func counterValue(t *testing.T, g prometheus.Gatherer, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, g, name, labels)
	if m == nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func inProgress(t *testing.T, g prometheus.Gatherer, method, path string) float64 {
	t.Helper()
	m := findMetric(t, g, "app_requests_in_progress", map[string]string{
		LabelAppName: "app",
		LabelMethod:  method,
		LabelPath:    path,
	})
	if m == nil {
		return 0
	}
	return m.GetGauge().GetValue()
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

// servePanic 执行请求并返回 handler 抛出的 panic 值
func servePanic(h http.Handler, req *http.Request) (rec any) {
	defer func() {
		rec = recover()
	}()
	h.ServeHTTP(httptest.NewRecorder(), req)
	return nil
}
