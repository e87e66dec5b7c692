package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/reqmetrics/xerrors"
)

func TestLabelResolver_Resolve(t *testing.T) {
	r, err := NewLabelResolver(
		LabelSpec{Name: "region", Value: Static("eu")},
		LabelSpec{Name: "shard", Value: Static(42)},
		LabelSpec{Name: "user", Value: FromHeader("X-User", "frank", "estelle")},
		LabelSpec{Name: "agent", Value: DynamicString(func(r *http.Request) string { return r.UserAgent() })},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "shard", "user", "agent"}, r.Names())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("x-user", "frank")
	req.Header.Set("User-Agent", "curl")

	labels, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, []Label{
		L("region", "eu"),
		L("shard", "42"),
		L("user", "frank"),
		L("agent", "curl"),
	}, labels)
}

func TestFromHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		allowed []string
		want    string
	}{
		{"白名单内", "frank", []string{"frank", "estelle"}, "frank"},
		{"白名单外", "bob", []string{"frank", "estelle"}, ""},
		{"缺失请求头", "", []string{"frank"}, ""},
		{"无白名单", "bob", nil, "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("X-User", tt.header)
			}
			v := FromHeader("x-user", tt.allowed...)
			got, err := v.extractor(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewLabelResolver_InvalidNames(t *testing.T) {
	tests := []struct {
		name  string
		specs []LabelSpec
	}{
		{"数字开头", []LabelSpec{{Name: "1abc", Value: Static("x")}}},
		{"非法字符", []LabelSpec{{Name: "a-b", Value: Static("x")}}},
		{"空名称", []LabelSpec{{Name: "", Value: Static("x")}}},
		{"双下划线前缀", []LabelSpec{{Name: "__internal", Value: Static("x")}}},
		{"与固定标签重名", []LabelSpec{{Name: LabelPath, Value: Static("x")}}},
		{"重复", []LabelSpec{{Name: "a", Value: Static("1")}, {Name: "a", Value: Static("2")}}},
		{"空提取函数", []LabelSpec{{Name: "a", Value: Dynamic(nil)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLabelResolver(tt.specs...)
			require.Error(t, err)

			var le *LabelError
			assert.True(t, errors.As(err, &le))
			assert.ErrorIs(t, err, xerrors.ErrLabelResolution)
			assert.ErrorIs(t, err, xerrors.ErrConfiguration)
		})
	}
}

func TestLabelResolver_ExtractorFailures(t *testing.T) {
	cause := errors.New("tenant lookup failed")

	r, err := NewLabelResolver(LabelSpec{Name: "tenant", Value: Dynamic(func(*http.Request) (string, error) {
		return "", cause
	})})
	require.NoError(t, err)

	_, err = r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, xerrors.ErrConfiguration)

	var le *LabelError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, "tenant", le.Label)

	t.Run("提取函数 panic 被包装", func(t *testing.T) {
		r, err := NewLabelResolver(LabelSpec{Name: "boom", Value: DynamicString(func(*http.Request) string {
			panic("nil map")
		})})
		require.NoError(t, err)

		_, err = r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil map")
		assert.ErrorIs(t, err, xerrors.ErrLabelResolution)
	})
}

func TestLabelResolver_Empty(t *testing.T) {
	r, err := NewLabelResolver()
	require.NoError(t, err)
	assert.Zero(t, r.Len())

	labels, err := r.Resolve(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, labels)
}
