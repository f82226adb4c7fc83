// Package config loads the flightdeck console configuration.
//
// Values come from three layers, later layers winning: built-in defaults,
// an optional YAML file, and FLIGHTDECK_* environment variables. Commands
// apply their flags on top of the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvWSURL     = "FLIGHTDECK_WS_URL"
	EnvAPIURL    = "FLIGHTDECK_API_URL"
	EnvLogLevel  = "FLIGHTDECK_LOG_LEVEL"
	EnvListen    = "FLIGHTDECK_LISTEN"
	EnvFlightLog = "FLIGHTDECK_FLIGHT_LOG"
)

// Defaults match the simulator backend's local dev setup.
const (
	DefaultWSURL  = "ws://127.0.0.1:8000/ws"
	DefaultAPIURL = "http://127.0.0.1:8000"
	DefaultListen = "127.0.0.1:5173"
)

// Config is the complete console configuration.
type Config struct {
	Link      LinkConfig      `yaml:"link"`
	API       APIConfig       `yaml:"api"`
	Sampler   SamplerConfig   `yaml:"sampler"`
	Polling   PollingConfig   `yaml:"polling"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	FlightLog FlightLogConfig `yaml:"flight_log"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LinkConfig configures the realtime control/telemetry channel.
type LinkConfig struct {
	URL            string   `yaml:"url"`
	ReconnectDelay Duration `yaml:"reconnect_delay"`
}

// APIConfig configures the backend REST client.
type APIConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// SamplerConfig configures the command sampler.
type SamplerConfig struct {
	Interval          Duration `yaml:"interval"`
	OverrideMagnitude float64  `yaml:"override_magnitude"`
}

// PollingConfig holds the status poll intervals.
type PollingConfig struct {
	Mode     Duration `yaml:"mode"`
	Scripts  Duration `yaml:"scripts"`
	Training Duration `yaml:"training"`
	Tests    Duration `yaml:"tests"`
	Metrics  Duration `yaml:"metrics"`
	Stats    Duration `yaml:"stats"`
}

// BridgeConfig configures the operator bridge HTTP server.
type BridgeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// FlightLogConfig configures the optional sqlite telemetry recorder.
// An empty Path disables recording.
type FlightLogConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the recommended configuration.
func Default() Config {
	return Config{
		Link: LinkConfig{
			URL:            DefaultWSURL,
			ReconnectDelay: Duration(1000 * time.Millisecond),
		},
		API: APIConfig{
			BaseURL: DefaultAPIURL,
			Timeout: Duration(5 * time.Second),
		},
		Sampler: SamplerConfig{
			Interval:          Duration(50 * time.Millisecond),
			OverrideMagnitude: 0.35,
		},
		Polling: PollingConfig{
			Mode:     Duration(1000 * time.Millisecond),
			Scripts:  Duration(1000 * time.Millisecond),
			Training: Duration(1000 * time.Millisecond),
			Tests:    Duration(1000 * time.Millisecond),
			Metrics:  Duration(2000 * time.Millisecond),
			Stats:    Duration(5 * time.Second),
		},
		Bridge: BridgeConfig{
			Enabled: true,
			Listen:  DefaultListen,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("error reading config file '%s': %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("error parsing config file '%s': %w", path, err)
		}
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from FLIGHTDECK_* environment variables.
func (c *Config) ApplyEnv() {
	c.Link.URL = Env(EnvWSURL, c.Link.URL)
	c.API.BaseURL = Env(EnvAPIURL, c.API.BaseURL)
	c.Logging.Level = Env(EnvLogLevel, c.Logging.Level)
	c.Bridge.Listen = Env(EnvListen, c.Bridge.Listen)
	c.FlightLog.Path = Env(EnvFlightLog, c.FlightLog.Path)
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Link.URL == "" {
		return errors.New("missing required field: link.url")
	}
	if c.API.BaseURL == "" {
		return errors.New("missing required field: api.base_url")
	}
	if c.Link.ReconnectDelay <= 0 {
		return fmt.Errorf("link.reconnect_delay must be positive, got %s", c.Link.ReconnectDelay)
	}
	if c.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler.interval must be positive, got %s", c.Sampler.Interval)
	}
	if c.Sampler.OverrideMagnitude <= 0 {
		return fmt.Errorf("sampler.override_magnitude must be positive, got %v", c.Sampler.OverrideMagnitude)
	}

	polls := map[string]Duration{
		"polling.mode":     c.Polling.Mode,
		"polling.scripts":  c.Polling.Scripts,
		"polling.training": c.Polling.Training,
		"polling.tests":    c.Polling.Tests,
		"polling.metrics":  c.Polling.Metrics,
		"polling.stats":    c.Polling.Stats,
	}
	for name, d := range polls {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Bridge.Enabled && c.Bridge.Listen == "" {
		return errors.New("missing required field: bridge.listen")
	}
	return nil
}

// Env returns the value of the environment variable key,
// falling back to def if it is unset or empty.
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
