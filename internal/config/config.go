// Package config loads ebs-tuner configuration from the environment or a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
)

// Environment variable names.
const (
	EnvTagKey     = "TARGET_EC2_TAG_KEY"
	EnvTagValue   = "TARGET_EC2_TAG_VALUE"
	EnvThroughput = "THROUGHPUT_VALUE"
	EnvIOPS       = "IOPS_VALUE"
)

// Defaults.
const (
	DefaultTagKey     = "stack"
	DefaultThroughput = 125
	DefaultIOPS       = 3000
	DefaultInterval   = "5m"
)

// ErrMissingTagValue is returned when no target tag value is configured.
var ErrMissingTagValue = errors.New(EnvTagValue + " environment variable is not set")

// Config is the root configuration structure.
type Config struct {
	Tuning TuningConfig `toml:"tuning"`
	AWS    AWSConfig    `toml:"aws"`
	OTEL   OTELConfig   `toml:"otel"`
	Log    LogConfig    `toml:"log"`
	Watch  WatchConfig  `toml:"watch"`
}

// TuningConfig selects target instances and the volume settings to apply.
type TuningConfig struct {
	TagKey     string `toml:"tag_key"`
	TagValue   string `toml:"tag_value"`
	Throughput int32  `toml:"throughput"`
	IOPS       int32  `toml:"iops"`
}

// AWSConfig holds AWS SDK settings. Empty values fall back to the SDK default chain.
type AWSConfig struct {
	Region  string `toml:"region"`
	Profile string `toml:"profile"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// WatchConfig holds settings for the periodic discovery loop.
type WatchConfig struct {
	IntervalStr string `toml:"interval"`
	Interval    time.Duration
}

// Validate reports a missing tag value.
func (t TuningConfig) Validate() error {
	if t.TagValue == "" {
		return ErrMissingTagValue
	}
	return nil
}

// TagFilterName returns the DescribeInstances filter name for the tag key.
func (t TuningConfig) TagFilterName() string {
	return "tag:" + t.TagKey
}

// FromEnv builds a Config from environment variables.
func FromEnv() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault(EnvTagKey, DefaultTagKey)
	v.SetDefault(EnvThroughput, strconv.Itoa(DefaultThroughput))
	v.SetDefault(EnvIOPS, strconv.Itoa(DefaultIOPS))
	v.SetDefault("OTEL_SERVICE_NAME", "ebs-tuner")
	v.SetDefault("OTEL_TRACES_SAMPLE_RATE", "1.0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WATCH_INTERVAL", DefaultInterval)

	throughput, err := parseInt32(EnvThroughput, v.GetString(EnvThroughput))
	if err != nil {
		return nil, err
	}
	iops, err := parseInt32(EnvIOPS, v.GetString(EnvIOPS))
	if err != nil {
		return nil, err
	}
	sampleRate, err := strconv.ParseFloat(v.GetString("OTEL_TRACES_SAMPLE_RATE"), 64)
	if err != nil {
		return nil, fmt.Errorf("parse OTEL_TRACES_SAMPLE_RATE: %w", err)
	}

	cfg := &Config{
		Tuning: TuningConfig{
			TagKey:     v.GetString(EnvTagKey),
			TagValue:   v.GetString(EnvTagValue),
			Throughput: throughput,
			IOPS:       iops,
		},
		AWS: AWSConfig{
			Region:  v.GetString("AWS_REGION"),
			Profile: v.GetString("AWS_PROFILE"),
		},
		OTEL: OTELConfig{
			Endpoint:    v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Insecure:    v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
			ServiceName: v.GetString("OTEL_SERVICE_NAME"),
			Traces: TracesConfig{
				Enabled:    v.GetBool("OTEL_TRACES_ENABLED"),
				SampleRate: sampleRate,
			},
			Metrics: MetricsConfig{Enabled: v.GetBool("OTEL_METRICS_ENABLED")},
		},
		Log:   LogConfig{Level: v.GetString("LOG_LEVEL")},
		Watch: WatchConfig{IntervalStr: v.GetString("WATCH_INTERVAL")},
	}

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := parseInterval(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Tuning.TagKey == "" {
		cfg.Tuning.TagKey = DefaultTagKey
	}
	if cfg.Tuning.Throughput == 0 {
		cfg.Tuning.Throughput = DefaultThroughput
	}
	if cfg.Tuning.IOPS == 0 {
		cfg.Tuning.IOPS = DefaultIOPS
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "ebs-tuner"
	}
	if cfg.Watch.IntervalStr == "" {
		cfg.Watch.IntervalStr = DefaultInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseInterval(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Watch.IntervalStr)
	if err != nil {
		return fmt.Errorf("parse interval %q: %w", cfg.Watch.IntervalStr, err)
	}
	if d <= 0 {
		return fmt.Errorf("interval must be positive (got %s)", d)
	}
	cfg.Watch.Interval = d
	return nil
}

func parseInt32(name, raw string) (int32, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", name, raw)
	}
	return int32(n), nil
}

// Validate checks the configuration is valid.
func (c *Config) Validate() error {
	if err := c.Tuning.Validate(); err != nil {
		return err
	}
	if c.Tuning.Throughput <= 0 {
		return fmt.Errorf("tuning: throughput must be positive (got %d)", c.Tuning.Throughput)
	}
	if c.Tuning.IOPS <= 0 {
		return fmt.Errorf("tuning: iops must be positive (got %d)", c.Tuning.IOPS)
	}
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}
