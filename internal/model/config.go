package model

import "time"

// Config holds all runtime settings. It is resolved once at the CLI boundary
// and passed to the components that need it.
type Config struct {
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Capture      CaptureConfig      `yaml:"capture" mapstructure:"capture"`
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig locates the run store.
type StoreConfig struct {
	Root string `yaml:"root" mapstructure:"root"` // directory containing people/
}

// HTTPConfig controls page fetching for static capture.
type HTTPConfig struct {
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	HTTPProxy     string        `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy    string        `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy       string        `yaml:"no_proxy" mapstructure:"no_proxy"`
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
}

// CacheConfig controls the fetched-page cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// PacingConfig bounds how fast the extractor acts on a page.
type PacingConfig struct {
	ExpandDelay   time.Duration `yaml:"expand_delay" mapstructure:"expand_delay" json:"expandDelay"`
	ActionDelay   time.Duration `yaml:"action_delay" mapstructure:"action_delay" json:"actionDelay"`
	MaxExpansions int           `yaml:"max_expansions" mapstructure:"max_expansions" json:"maxExpansions"`
}

// CaptureConfig controls evidence capture.
type CaptureConfig struct {
	Profile     string        `yaml:"profile" mapstructure:"profile"` // empty = choose by host
	Headless    bool          `yaml:"headless" mapstructure:"headless"`
	PageTimeout time.Duration `yaml:"page_timeout" mapstructure:"page_timeout"`
	Redact      bool          `yaml:"redact" mapstructure:"redact"`
	Pacing      PacingConfig  `yaml:"pacing" mapstructure:"pacing"`
}

// LLMConfig selects the completion endpoint used by the direct path.
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
}

// PipelineConfig controls the staged AI pipeline.
type PipelineConfig struct {
	StageTimeout   time.Duration `yaml:"stage_timeout" mapstructure:"stage_timeout"`
	UseRedacted    bool          `yaml:"use_redacted" mapstructure:"use_redacted"`
	StrictClusters bool          `yaml:"strict_clusters" mapstructure:"strict_clusters"`
}

// RateLimitingConfig holds per-host fetch limits.
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig bounds batch parallelism across independent runs.
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig controls CLI output.
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Root: "./ancestra-data",
		},
		HTTP: HTTPConfig{
			Timeout:       30 * time.Second,
			UserAgent:     "Ancestra/0.3 (+https://github.com/ppiankov/ancestra)",
			MaxBodyBytes:  5_000_000,
			MaxRetries:    3,
			RespectRobots: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "./.ancestra-cache",
			MemoryTTL: 10 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Capture: CaptureConfig{
			Headless:    true,
			PageTimeout: 2 * time.Minute,
			Redact:      true,
			Pacing: PacingConfig{
				ExpandDelay:   800 * time.Millisecond,
				ActionDelay:   400 * time.Millisecond,
				MaxExpansions: 40,
			},
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Timeout:     120,
			MaxTokens:   4000,
			Temperature: 0.2,
		},
		Pipeline: PipelineConfig{
			StageTimeout:   3 * time.Minute,
			UseRedacted:    true,
			StrictClusters: true,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 0.5,
			BurstSize:         1,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}
