package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler, accept string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler(t *testing.T) {
	reg, _ := newTestRegistry()
	in, err := New(nil, WithRegistry(reg), WithExemplars(func(*http.Request) prometheus.Labels {
		return prometheus.Labels{"trace_id": "feedface"}
	}))
	require.NoError(t, err)
	serve(in.Middleware(newTestMux()), http.MethodGet, "/hello")

	t.Run("文本格式", func(t *testing.T) {
		w := scrape(t, reg.Handler(), "")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
		assert.Contains(t, w.Body.String(), `app_requests_total{app_name="app",method="GET",path="/hello",status_code="200"} 1`)
		assert.Contains(t, w.Body.String(), "# TYPE app_request_duration_seconds histogram")
		assert.NotContains(t, w.Body.String(), "feedface", "文本格式不输出 exemplar")
	})

	t.Run("OpenMetrics 协商", func(t *testing.T) {
		w := scrape(t, reg.Handler(), "application/openmetrics-text; version=1.0.0")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/openmetrics-text")
		assert.Contains(t, w.Body.String(), `trace_id="feedface"`)
		assert.Contains(t, w.Body.String(), "# EOF")
	})
}

func TestHandler_ContinueOnError(t *testing.T) {
	reg, promReg := newTestRegistry()
	in, err := New(nil, WithRegistry(reg))
	require.NoError(t, err)
	serve(in.Middleware(newTestMux()), http.MethodGet, "/hello")

	failing := prometheus.GathererFunc(func() ([]*dto.MetricFamily, error) {
		return nil, errors.New("collector exploded")
	})
	logger, buf := newBufferLogger(t)
	h := Handler(prometheus.Gatherers{promReg, failing}, WithHandlerLogger(logger), WithMaxRequestsInFlight(1))

	w := scrape(t, h, "")
	assert.Equal(t, http.StatusOK, w.Code, "部分失败时仍输出已采集的指标")
	assert.Contains(t, w.Body.String(), "app_requests_total")
	assert.Contains(t, buf.String(), "metrics gathering failed")
	assert.Contains(t, buf.String(), "collector exploded")
}
