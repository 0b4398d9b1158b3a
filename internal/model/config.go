package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete certgrade configuration.
// It is resolved once by the CLI; core packages receive only the handles built from it.
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Catalog      CatalogConfig      `yaml:"catalog" mapstructure:"catalog"`
	Resolver     ResolverConfig     `yaml:"resolver" mapstructure:"resolver"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Metrics      MetricsConfig      `yaml:"metrics" mapstructure:"metrics"`
}

// LLMConfig configures the extraction capability provider
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, openrouter, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"-" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	HTTPProxy   string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// CatalogConfig selects the specification catalog backend
type CatalogConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // file, sqlite, pgx
	Path     string `yaml:"path,omitempty" mapstructure:"path"`
	DSN      string `yaml:"dsn,omitempty" mapstructure:"dsn"`
	Category string `yaml:"category,omitempty" mapstructure:"category"`
}

// ResolverConfig selects the grade resolution strategy
type ResolverConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"` // substring, llm
}

// CacheConfig configures the LLM response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig configures batch workers
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// RateLimitingConfig throttles calls to the LLM provider
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// OutputConfig controls report rendering
type OutputConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	JSON          bool   `yaml:"json" mapstructure:"json"`
	Markdown      bool   `yaml:"markdown" mapstructure:"markdown"`
	XLSX          bool   `yaml:"xlsx" mapstructure:"xlsx"`
	IncludeFooter bool   `yaml:"include_footer" mapstructure:"include_footer"`
	Verbose       bool   `yaml:"verbose" mapstructure:"verbose"`
}

// MetricsConfig configures the Prometheus textfile output
type MetricsConfig struct {
	File string `yaml:"file,omitempty" mapstructure:"file"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	cacheDir := ".certgrade-cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".certgrade", "cache")
	}

	return &Config{
		LLM: LLMConfig{
			Provider:    "openrouter",
			Model:       "google/gemini-1.5-flash",
			Timeout:     60,
			MaxTokens:   2000,
			Temperature: 0,
		},
		Catalog: CatalogConfig{
			Driver: "file",
			Path:   "catalog.yaml",
		},
		Resolver: ResolverConfig{
			Strategy: "substring",
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: 1 * time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Output: OutputConfig{
			Dir:           "./certgrade-reports",
			JSON:          true,
			Markdown:      true,
			IncludeFooter: true,
		},
	}
}
