// Package config loads boxdrec settings from built-in defaults, an optional
// INI or YAML file and BOXD_* environment variables, in that order.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix marks the environment variables read by Load. The first segment
// after it names the section: BOXD_SITE_BASE_URL sets site.base_url.
const EnvPrefix = "BOXD_"

type Config struct {
	Site      SiteConfig      `koanf:"site"`
	Collector CollectorConfig `koanf:"collector"`
	Recommend RecommendConfig `koanf:"recommend"`
	TMDb      TMDbConfig      `koanf:"tmdb"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
}

// SiteConfig tunes the catalog site fetch client.
type SiteConfig struct {
	BaseURL           string        `koanf:"base_url" validate:"required,url"`
	UserAgent         string        `koanf:"user_agent"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"gte=1"`
	BreakerFailures   uint32        `koanf:"breaker_failures" validate:"gte=1"`
	BreakerTimeout    time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

type CollectorConfig struct {
	Concurrency int `koanf:"concurrency" validate:"gte=1,lte=64"`
	BatchSize   int `koanf:"batch_size" validate:"gte=1"`
	// MaxPages caps listing pagination; 0 is unlimited.
	MaxPages int    `koanf:"max_pages" validate:"gte=0"`
	Dataset  string `koanf:"dataset"`
}

type RecommendConfig struct {
	Count                int     `koanf:"count" validate:"gte=1"`
	MinPopularity        int64   `koanf:"min_popularity" validate:"gte=0"`
	DiverseMinPopularity int64   `koanf:"diverse_min_popularity" validate:"gte=0"`
	DiversityFraction    float64 `koanf:"diversity_fraction" validate:"gte=0,lte=1"`
	Fuzzy                bool    `koanf:"fuzzy"`
	Catalog              string  `koanf:"catalog"`
}

type TMDbConfig struct {
	APIKey            string  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url" validate:"required,url"`
	MaxPages          int     `koanf:"max_pages" validate:"gte=1"`
	RequestsPerSecond float64 `koanf:"requests_per_second" validate:"gt=0"`
}

// CacheConfig controls the on-disk page cache. An empty Path disables it.
type CacheConfig struct {
	Path string        `koanf:"path"`
	TTL  time.Duration `koanf:"ttl" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	SessionTTL      time.Duration `koanf:"session_ttl" validate:"gt=0"`
	CleanupInterval time.Duration `koanf:"cleanup_interval" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Site: SiteConfig{
			BaseURL:           "https://letterboxd.com",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 4,
			Burst:             6,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
		},
		Collector: CollectorConfig{
			Concurrency: 6,
			BatchSize:   50,
			Dataset:     "dataset.csv",
		},
		Recommend: RecommendConfig{
			Count:                20,
			MinPopularity:        1000,
			DiverseMinPopularity: 50,
			DiversityFraction:    0.35,
			Catalog:              "catalog.csv",
		},
		TMDb: TMDbConfig{
			BaseURL:           "https://api.themoviedb.org/3",
			MaxPages:          500,
			RequestsPerSecond: 20,
		},
		Cache: CacheConfig{
			TTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Server: ServerConfig{
			Addr:            ":8080",
			SessionTTL:      time.Hour,
			CleanupInterval: 10 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// Load layers defaults, the file at path (if not empty) and the environment,
// then validates the result. Files ending in .yaml or .yml are YAML, anything
// else is INI.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		var parser koanf.Parser = INIParser()
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// envTransform maps BOXD_SECTION_SOME_KEY to section.some_key.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok || rest == "" {
		return section
	}
	return section + "." + rest
}
