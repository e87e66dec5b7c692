package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/reqmetrics/xerrors"
)

func TestConfig_Validate(t *testing.T) {
	_, err := Init(context.Background(), nil)
	assert.True(t, xerrors.Is(err, xerrors.ErrInvalidInput))

	tests := []struct {
		name string
		cfg  *Config
	}{
		{"缺少服务名", &Config{Endpoint: "localhost:4317"}},
		{"缺少 endpoint", &Config{ServiceName: "svc"}},
		{"采样率越界", &Config{ServiceName: "svc", Endpoint: "x", Sampler: 1.5}},
		{"未知 batcher", &Config{ServiceName: "svc", Endpoint: "x", Batcher: "async"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.validate(), xerrors.ErrInvalidInput)
		})
	}
	assert.NoError(t, DefaultConfig("svc").validate())
}

func TestDiscard_ProducesValidSpans(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Discard(ctx, "reqmetrics-test")
	require.NoError(t, err)
	defer func() { _ = shutdown(ctx) }()

	_, span := otel.Tracer("test").Start(ctx, "op")
	defer span.End()

	sc := span.SpanContext()
	assert.True(t, sc.IsValid())
	assert.True(t, sc.IsSampled())
}

func TestGinMiddleware_InjectsSpan(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	shutdown, err := Discard(ctx, "reqmetrics-test")
	require.NoError(t, err)
	defer func() { _ = shutdown(ctx) }()

	var got oteltrace.SpanContext
	r := gin.New()
	r.Use(GinMiddleware("reqmetrics-test"))
	r.GET("/ping", func(c *gin.Context) {
		got = oteltrace.SpanContextFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, got.IsValid())
}
