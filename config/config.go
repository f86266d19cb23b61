// Package config loads bridge settings from a YAML file and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/engine-bridge/errors"
)

// Environment variables that override file settings.
const (
	EnvEngine           = "HWBRIDGE_ENGINE"
	EnvLogLevel         = "HWBRIDGE_LOG_LEVEL"
	EnvMetricsAddr      = "HWBRIDGE_METRICS_ADDR"
	EnvPreviewTimeout   = "HWBRIDGE_PREVIEW_TIMEOUT"
	EnvRateLimit        = "HWBRIDGE_RATE_LIMIT"
	EnvRateBurst        = "HWBRIDGE_RATE_BURST"
	EnvMemoryLimitPages = "HWBRIDGE_MEMORY_LIMIT_PAGES"
	EnvWASI             = "HWBRIDGE_WASI"
)

// maxMemoryPages is the wasm32 address space in 64KiB pages.
const maxMemoryPages = 65536

// Config holds the hwbridge configuration.
type Config struct {
	Engine           string        `yaml:"engine" json:"engine"`
	LogLevel         string        `yaml:"log_level" json:"log_level"`
	MetricsAddr      string        `yaml:"metrics_addr" json:"metrics_addr"`
	ExpectedVersion  uint32        `yaml:"expected_version" json:"expected_version"`
	MemoryLimitPages uint32        `yaml:"memory_limit_pages" json:"memory_limit_pages"`
	WASI             bool          `yaml:"wasi" json:"wasi"`
	QueueHint        int           `yaml:"queue_hint" json:"queue_hint"`
	PreviewTimeout   time.Duration `yaml:"preview_timeout" json:"preview_timeout"`
	RateLimit        RateLimit     `yaml:"rate_limit" json:"rate_limit"`
}

// RateLimit caps outbound config frames. Zero FramesPerSecond disables it.
type RateLimit struct {
	FramesPerSecond float64 `yaml:"frames_per_second" json:"frames_per_second"`
	Burst           int     `yaml:"burst" json:"burst"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		QueueHint:      64,
		PreviewTimeout: 5 * time.Second,
	}
}

// DefaultPath returns the default config file path: ~/.hwbridge/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".hwbridge", "config.yaml")
	}
	return filepath.Join(home, ".hwbridge", "config.yaml")
}

// Load reads the configuration from the given YAML file path.
// If the file does not exist, it returns Default with no error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read "+path)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from the process environment.
func (c *Config) ApplyEnv() error {
	return c.ApplyLookup(os.LookupEnv)
}

// ApplyLookup overrides settings from lookup, which has the signature of
// os.LookupEnv.
func (c *Config) ApplyLookup(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvEngine); ok {
		c.Engine = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvMetricsAddr); ok {
		c.MetricsAddr = v
	}
	if v, ok := lookup(EnvPreviewTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError(EnvPreviewTimeout, err)
		}
		c.PreviewTimeout = d
	}
	if v, ok := lookup(EnvRateLimit); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return envError(EnvRateLimit, err)
		}
		c.RateLimit.FramesPerSecond = f
	}
	if v, ok := lookup(EnvRateBurst); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError(EnvRateBurst, err)
		}
		c.RateLimit.Burst = n
	}
	if v, ok := lookup(EnvMemoryLimitPages); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return envError(EnvMemoryLimitPages, err)
		}
		c.MemoryLimitPages = uint32(n)
	}
	if v, ok := lookup(EnvWASI); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError(EnvWASI, err)
		}
		c.WASI = b
	}
	return nil
}

func envError(name string, err error) error {
	return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "environment "+name)
}

// Level parses LogLevel.
func (c *Config) Level() (zapcore.Level, error) {
	return zapcore.ParseLevel(c.LogLevel)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log_level")
	}
	if c.MemoryLimitPages > maxMemoryPages {
		return errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("memory_limit_pages %d exceeds %d", c.MemoryLimitPages, maxMemoryPages))
	}
	if c.QueueHint < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "queue_hint must not be negative")
	}
	if c.PreviewTimeout < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "preview_timeout must not be negative")
	}
	if c.RateLimit.FramesPerSecond < 0 {
		return errors.InvalidInput(errors.PhaseConfig, "rate_limit.frames_per_second must not be negative")
	}
	if c.RateLimit.FramesPerSecond > 0 && c.RateLimit.Burst < 1 {
		return errors.InvalidInput(errors.PhaseConfig, "rate_limit.burst must be at least 1 when a rate is set")
	}
	return nil
}
