package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	t.Setenv("ROOT_PATH", dir)
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "", cfg.Fields.Source)
	assert.Equal(t, "id_talhao", cfg.Fields.IDProperty)
	assert.Equal(t, 2019, cfg.Years.Start)
	assert.Equal(t, 2025, cfg.Years.End)
	assert.Equal(t, "https://sh.dataspace.copernicus.eu", cfg.Sentinel.BaseURL)
	assert.Equal(t, "sentinel-2-l2a", cfg.Sentinel.Collection)
	assert.InDelta(t, 40.0, cfg.Sentinel.MaxCloudCover, 0.001)
	assert.InDelta(t, 10.0, cfg.Sentinel.Resolution, 0.001)
	assert.Equal(t, 4, cfg.Sentinel.MaxConcurrent)
	assert.Equal(t, 5, cfg.Sentinel.Retries)
	assert.Equal(t, "csv", cfg.Export.Format)
	assert.Empty(t, cfg.Export.Description)
	assert.Equal(t, filepath.Join(dir, "data", "result"), cfg.Export.Dir)
	assert.Equal(t, filepath.Join(dir, "data", "indices.db"), cfg.Store.Path)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
fields:
  source: fields.geojson
years:
  start: 2021
  end: 2022
sentinel:
  max_cloud_cover: 20
export:
  format: xlsx
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fields.geojson", cfg.Fields.Source)
	assert.Equal(t, 2021, cfg.Years.Start)
	assert.Equal(t, 2022, cfg.Years.End)
	assert.InDelta(t, 20.0, cfg.Sentinel.MaxCloudCover, 0.001)
	assert.Equal(t, "xlsx", cfg.Export.Format)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.InDelta(t, 10.0, cfg.Sentinel.Resolution, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("years:\n  start: 2020\n"), 0644))
	t.Setenv("FIELD_INDICES_YEARS_START", "2023")
	t.Setenv("FIELD_INDICES_SENTINEL_CLIENT_ID", "abc")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2023, cfg.Years.Start)
	assert.Equal(t, "abc", cfg.Sentinel.ClientID)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FIELD_INDICES_EXPORT_FORMAT=geojson\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("FIELD_INDICES_EXPORT_FORMAT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "geojson", cfg.Export.Format)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"inverted years", "years:\n  start: 2025\n  end: 2019\n"},
		{"cloud cover", "sentinel:\n  max_cloud_cover: 0\n"},
		{"resolution", "sentinel:\n  resolution: -1\n"},
		{"format", "export:\n  format: parquet\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := chdirTemp(t)
			require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(tt.yaml), 0644))

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "json"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "console"}))
	assert.False(t, zap.L().Core().Enabled(zap.InfoLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud"}))
}

func TestDefaultDescription(t *testing.T) {
	assert.Equal(t, "Indices_GEE_Talhoes_2019_2025", DefaultDescription(2019, 2025))
	assert.Equal(t, "Indices_GEE_Talhoes_2021_2022", DefaultDescription(2021, 2022))
}
