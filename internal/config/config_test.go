package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadINI(t *testing.T) {
	path := writeFile(t, "boxdrec.ini", `
[site]
base_url = http://localhost:9999
timeout = 5s

[collector]
concurrency = 3
batch_size = 10

[recommend]
fuzzy = true
diversity_fraction = 0.5

[tmdb]
api_key = secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.Site.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Site.Timeout)
	assert.Equal(t, 3, cfg.Collector.Concurrency)
	assert.Equal(t, 10, cfg.Collector.BatchSize)
	assert.True(t, cfg.Recommend.Fuzzy)
	assert.Equal(t, 0.5, cfg.Recommend.DiversityFraction)
	assert.Equal(t, "secret", cfg.TMDb.APIKey)
	assert.Equal(t, int64(1000), cfg.Recommend.MinPopularity, "untouched keys keep defaults")
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "boxdrec.yaml", `
log:
  level: debug
  format: json
server:
  addr: ":9090"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9090", cfg.Server.Addr)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "boxdrec.ini", "[collector]\nconcurrency = 3\n")
	t.Setenv("BOXD_COLLECTOR_CONCURRENCY", "8")
	t.Setenv("BOXD_RECOMMEND_MIN_POPULARITY", "250")
	t.Setenv("BOXD_TMDB_API_KEY", "from-env")
	t.Setenv("BOXD_CACHE_TTL", "2h")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Collector.Concurrency)
	assert.Equal(t, int64(250), cfg.Recommend.MinPopularity)
	assert.Equal(t, "from-env", cfg.TMDb.APIKey)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		ini  string
	}{
		{"fraction above one", "[recommend]\ndiversity_fraction = 1.5\n"},
		{"zero concurrency", "[collector]\nconcurrency = 0\n"},
		{"bad base url", "[site]\nbase_url = not a url\n"},
		{"unknown log format", "[log]\nformat = xml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "bad.ini", tt.ini))
			assert.ErrorContains(t, err, "validation failed")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	assert.Error(t, err)
}

func TestEnvTransform(t *testing.T) {
	assert.Equal(t, "site.base_url", envTransform("BOXD_SITE_BASE_URL"))
	assert.Equal(t, "tmdb.api_key", envTransform("BOXD_TMDB_API_KEY"))
	assert.Equal(t, "debug", envTransform("BOXD_DEBUG"))
}

func TestINIParserRoundTrip(t *testing.T) {
	p := INIParser()
	out, err := p.Marshal(map[string]interface{}{
		"top":  "x",
		"site": map[string]interface{}{"base_url": "http://a.test"},
	})
	require.NoError(t, err)

	back, err := p.Unmarshal(out)
	require.NoError(t, err)
	assert.Equal(t, "x", back["top"])
	assert.Equal(t, map[string]interface{}{"base_url": "http://a.test"}, back["site"])
}
