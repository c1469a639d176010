package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "SEGSLURP"

// Strategy names.
const (
	StrategyThreaded   = "threaded"
	StrategySequential = "sequential"
	StrategyFFmpeg     = "ffmpeg"
)

// Config defines configuration for the segslurp CLI.
type Config struct {
	// List is a file of segment URLs, one per line. "-" reads stdin.
	List string `yaml:"list" envconfig:"LIST"`

	// ManifestURL is the master playlist URL used by the ffmpeg strategy.
	ManifestURL string `yaml:"manifest_url" envconfig:"MANIFEST_URL"`

	// MediaPlaylist is the media playlist name relative to ManifestURL.
	// Empty means ManifestURL is the media playlist itself.
	MediaPlaylist string `yaml:"media_playlist" envconfig:"MEDIA_PLAYLIST"`

	Quality string `yaml:"quality" envconfig:"QUALITY"`

	// Output is the destination path, or the object key when Bucket is set.
	Output string `yaml:"output" envconfig:"OUTPUT"`

	// Bucket is a gocloud.dev bucket URL (file://, mem://, s3://, gs://).
	Bucket string `yaml:"bucket" envconfig:"BUCKET"`

	Strategy   string        `yaml:"strategy" envconfig:"STRATEGY"`
	Workers    int           `yaml:"workers" envconfig:"WORKERS"`
	Start      int           `yaml:"start" envconfig:"START"`
	Progress   bool          `yaml:"progress" envconfig:"PROGRESS"`
	LogLevel   string        `yaml:"log_level" envconfig:"LOG_LEVEL"`
	LogFormat  string        `yaml:"log_format" envconfig:"LOG_FORMAT"`
	FFmpegPath string        `yaml:"ffmpeg_path" envconfig:"FFMPEG_PATH"`
	Timeout    time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Retry      RetryConfig   `yaml:"retry" envconfig:"RETRY"`
}

// RetryConfig defines per-segment retry behavior.
type RetryConfig struct {
	Attempts   int           `yaml:"attempts" envconfig:"ATTEMPTS"`
	Backoff    time.Duration `yaml:"backoff" envconfig:"BACKOFF"`
	MaxBackoff time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Strategy:   StrategyThreaded,
		Workers:    10,
		LogLevel:   "info",
		LogFormat:  "text",
		FFmpegPath: "ffmpeg",
		Timeout:    10 * time.Second,
		Retry: RetryConfig{
			Attempts:   5,
			Backoff:    250 * time.Millisecond,
			MaxBackoff: 5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables onto c.
// Environment variables use the SEGSLURP_ prefix, e.g. SEGSLURP_WORKERS or
// SEGSLURP_RETRY_MAX_BACKOFF. Unset variables leave c unchanged.
func (c *Config) LoadFromEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Output == "" {
		return errors.New("config: output is required")
	}

	switch c.Strategy {
	case StrategyThreaded, StrategySequential:
		if c.List == "" {
			return fmt.Errorf("config: list is required for the %s strategy", c.Strategy)
		}
	case StrategyFFmpeg:
		if c.ManifestURL == "" {
			return errors.New("config: manifest_url is required for the ffmpeg strategy")
		}
		if c.Bucket != "" {
			return errors.New("config: the ffmpeg strategy writes local files only")
		}
	default:
		return fmt.Errorf("config: unknown strategy %q", c.Strategy)
	}

	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.Start < 0 {
		return errors.New("config: start must not be negative")
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retry.Attempts < 1 {
		return errors.New("config: retry.attempts must be at least 1")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.List != "" {
		c.List = override.List
	}
	if override.ManifestURL != "" {
		c.ManifestURL = override.ManifestURL
	}
	if override.MediaPlaylist != "" {
		c.MediaPlaylist = override.MediaPlaylist
	}
	if override.Quality != "" {
		c.Quality = override.Quality
	}
	if override.Output != "" {
		c.Output = override.Output
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.Strategy != "" {
		c.Strategy = override.Strategy
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.Start != 0 {
		c.Start = override.Start
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.LogLevel != "" {
		c.LogLevel = override.LogLevel
	}
	if override.LogFormat != "" {
		c.LogFormat = override.LogFormat
	}
	if override.FFmpegPath != "" {
		c.FFmpegPath = override.FFmpegPath
	}
	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxBackoff != 0 {
		c.Retry.MaxBackoff = override.Retry.MaxBackoff
	}
	return c
}
