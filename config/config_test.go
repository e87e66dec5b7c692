package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
log:
  level: info
metrics:
  app_name: demo
  prefix: demo
  group_paths: true
  buckets: [0.1, 0.5, 1]
  static_labels:
    region: eu
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConfig_Defaults(t *testing.T) {
	cfg := &Config{EnvPrefix: "demo"}
	require.NoError(t, cfg.validate())
	assert.Equal(t, "reqmetrics", cfg.Name)
	assert.Equal(t, []string{".", "./config"}, cfg.Paths)
	assert.Equal(t, "yaml", cfg.FileType)
	assert.Equal(t, "DEMO", cfg.EnvPrefix)
}

func TestLoader_LoadAndUnmarshal(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "exporter.yaml", sampleYAML)

	loader, err := New(&Config{Name: "exporter", Paths: []string{dir}, EnvPrefix: "RMTEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "demo", loader.Get("metrics.app_name"))

	var section struct {
		AppName      string            `mapstructure:"app_name"`
		GroupPaths   bool              `mapstructure:"group_paths"`
		Buckets      []float64         `mapstructure:"buckets"`
		StaticLabels map[string]string `mapstructure:"static_labels"`
	}
	require.NoError(t, loader.UnmarshalKey("metrics", &section))
	assert.Equal(t, "demo", section.AppName)
	assert.True(t, section.GroupPaths)
	assert.Equal(t, []float64{0.1, 0.5, 1}, section.Buckets)
	assert.Equal(t, "eu", section.StaticLabels["region"])
}

func TestLoader_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "exporter.yaml", sampleYAML)
	t.Setenv("RMTEST_METRICS_PREFIX", "override")

	loader, err := New(&Config{Name: "exporter", Paths: []string{dir}, EnvPrefix: "RMTEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "override", loader.Get("metrics.prefix"))
}

func TestLoader_EnvironmentSpecificMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "exporter.yaml", sampleYAML)
	writeConfig(t, dir, "exporter.prod.yaml", "metrics:\n  app_name: prod-app\n")
	t.Setenv("RMTEST_ENV", "prod")

	loader, err := New(&Config{Name: "exporter", Paths: []string{dir}, EnvPrefix: "RMTEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "prod-app", loader.Get("metrics.app_name"))
	assert.Equal(t, "demo", loader.Get("metrics.prefix"))
}

func TestLoader_EmptyConfigFails(t *testing.T) {
	loader, err := New(&Config{Name: "missing", Paths: []string{t.TempDir()}, EnvPrefix: "RMEMPTY"})
	require.NoError(t, err)

	err = loader.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidationFailed)
	assert.True(t, IsInvalidInput(err))
}

func TestLoader_WatchRequiresFile(t *testing.T) {
	loader, err := New(&Config{Name: "missing", Paths: []string{t.TempDir()}})
	require.NoError(t, err)

	_, err = loader.Watch(context.Background(), "log.level")
	assert.Error(t, err)
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "exporter.yaml", sampleYAML)

	loader, err := New(&Config{Name: "exporter", Paths: []string{dir}, EnvPrefix: "RMWATCH"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := loader.Watch(ctx, "log.level")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o644))

	select {
	case ev := <-ch:
		assert.Equal(t, "log.level", ev.Key)
		assert.Equal(t, "debug", ev.Value)
		assert.Equal(t, "info", ev.OldValue)
	case <-time.After(5 * time.Second):
		t.Fatal("等待配置变更事件超时")
	}
}
