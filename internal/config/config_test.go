package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Scraper.BatchWidth)
	assert.Equal(t, 2, cfg.Scraper.Retries)
	assert.Equal(t, 3, cfg.Pool.LowWaterMark)
	assert.Equal(t, 50, cfg.Pool.ValidationBatchSize)
	assert.Equal(t, 2000, cfg.Pool.MaxCandidates)
	assert.Equal(t, 5000, cfg.Checker.TimeoutMs)
	assert.Equal(t, 10000, cfg.Aggregator.TimeoutMs)
	assert.Equal(t, 30000, cfg.Browser.NavigationTimeoutMs)
	assert.Equal(t, 60000, cfg.Browser.PageTimeoutMs)
	assert.Len(t, cfg.Aggregator.Sources, len(DefaultSources))
	assert.Equal(t, "none", cfg.Storage.Type)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"scraper": {"batch_width": 5, "retries": 4},
		"storage": {"type": "sqlite", "path": "/tmp/r.db"},
		"venues": [{"id": "a", "name": "A", "area": "X", "url": "https://example.com/a"}]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scraper.BatchWidth)
	assert.Equal(t, 4, cfg.Scraper.Retries)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	require.Len(t, cfg.Venues, 1)
	assert.Equal(t, "a", cfg.Venues[0].ID)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad json", body: `{`},
		{name: "bad storage", body: `{"storage": {"type": "s3"}}`},
		{name: "bad protocol", body: `{"aggregator": {"sources": [{"url": "x", "protocol": "socks4", "enabled": true}]}}`},
		{name: "inverted delays", body: `{"scraper": {"dwell_min_ms": 9000, "dwell_max_ms": 1000}}`},
		{name: "duplicate venue", body: `{"venues": [{"id": "a"}, {"id": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"scraper": {"batch_width": 2}}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, cfg.Scraper.BatchWidth)

	require.NoError(t, os.WriteFile(path, []byte(`{"scraper": {"batch_width": 6}}`), 0644))
	require.NoError(t, cfg.Reload())
	assert.Equal(t, 6, cfg.Scraper.BatchWidth)
}
