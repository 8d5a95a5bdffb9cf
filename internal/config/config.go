package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the runtime configuration of the simulator process. Scenario
// content (devices, season, horizon) lives in its own JSON file; this file
// only configures the surrounding service plumbing.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	NATS    NATSConfig    `yaml:"nats"`
	Tracing TracingConfig `yaml:"tracing"`
	Run     RunConfig     `yaml:"run"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig configures the HTTP control surface.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns the listen address in host:port form.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig configures the optional domain event forwarder.
type NATSConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	MaxReconnects int    `yaml:"max_reconnects"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// RunConfig controls how the run is driven.
type RunConfig struct {
	Realtime bool    `yaml:"realtime"` // pace against the wall clock
	Speedup  float64 `yaml:"speedup"`  // simulated seconds per wall second
}

// Default returns the configuration used when no file is given: quiet text
// logs, no API, no NATS, no tracing, run as fast as possible.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		API: APIConfig{Host: "127.0.0.1", Port: 8080},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "loranet",
			MaxReconnects: 10,
		},
		Tracing: TracingConfig{Exporter: "stdout", SampleRatio: 1.0},
		Run:     RunConfig{Speedup: 60},
	}
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate rejects values the process cannot run with.
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format %q not one of text, json", c.Log.Format)
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("api port %d out of range", c.API.Port)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats enabled without a url")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio %.2f out of [0,1]", c.Tracing.SampleRatio)
	}
	if c.Run.Realtime && c.Run.Speedup <= 0 {
		return fmt.Errorf("realtime speedup %.2f must be positive", c.Run.Speedup)
	}
	return nil
}
