package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the editor configuration, read from ragflow.yaml or ragflow.toml.
type Config struct {
	Version int `yaml:"version" toml:"version"`
	Editor  struct {
		Name             string  `yaml:"name" toml:"name"`
		GridSize         float64 `yaml:"grid_size" toml:"grid_size"`
		ZoomMin          float64 `yaml:"zoom_min" toml:"zoom_min"`
		ZoomMax          float64 `yaml:"zoom_max" toml:"zoom_max"`
		ZoomStep         float64 `yaml:"zoom_step" toml:"zoom_step"`
		PropagationDelay string  `yaml:"propagation_delay" toml:"propagation_delay"`
		DebugMode        bool    `yaml:"debug_mode" toml:"debug_mode"`
	} `yaml:"editor" toml:"editor"`
	Backend struct {
		URL     string `yaml:"url" toml:"url"`
		Timeout string `yaml:"timeout" toml:"timeout"`
	} `yaml:"backend" toml:"backend"`
	Network struct {
		UIPort int `yaml:"ui_port" toml:"ui_port"`
	} `yaml:"network" toml:"network"`
	MQTT struct {
		URL         string `yaml:"url" toml:"url"`
		TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix"`
	} `yaml:"mqtt" toml:"mqtt"`
	Storage struct {
		Postgres bool `yaml:"postgres" toml:"postgres"`
	} `yaml:"storage" toml:"storage"`
	Alerts struct {
		WebhookURL string `yaml:"webhook_url" toml:"webhook_url"`
	} `yaml:"alerts" toml:"alerts"`
}

// Default returns a configuration with every field set to its default.
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.Editor.Name = "ragflow"
	cfg.Editor.GridSize = 40
	cfg.Editor.ZoomMin = 0.1
	cfg.Editor.ZoomMax = 2.0
	cfg.Editor.ZoomStep = 0.1
	cfg.Editor.PropagationDelay = "100ms"
	cfg.Backend.URL = "http://localhost:5000"
	cfg.Network.UIPort = 8080
	cfg.MQTT.TopicPrefix = "ragflow"
	return cfg
}

// UIPort returns the configured UI port, defaulting to 8080 if not set.
func (c *Config) UIPort() int {
	if c.Network.UIPort == 0 {
		return 8080
	}
	return c.Network.UIPort
}

// PropagationDelay returns the pause between a block finishing and its
// downstream blocks starting.
func (c *Config) PropagationDelay() time.Duration {
	d, err := time.ParseDuration(c.Editor.PropagationDelay)
	if err != nil || d < 0 {
		return 100 * time.Millisecond
	}
	return d
}

// BackendTimeout returns the per-request timeout for the backend. Zero means
// requests never time out.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(c.Backend.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// MQTTURL returns the broker URL from the config, then MQTT_URL.
func (c *Config) MQTTURL() string {
	if c.MQTT.URL != "" {
		return c.MQTT.URL
	}
	return os.Getenv("MQTT_URL")
}

// Load reads a config file. Files ending in .toml are decoded as TOML, every
// other extension as YAML. Missing fields keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Version = 0
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if cfg.Version != 1 {
		return nil, fmt.Errorf("unsupported %s version: %d", filepath.Base(path), cfg.Version)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", filepath.Base(path), err)
	}

	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) validate() error {
	if c.Editor.GridSize <= 0 {
		return fmt.Errorf("editor.grid_size must be positive, got %v", c.Editor.GridSize)
	}
	if c.Editor.ZoomMin <= 0 || c.Editor.ZoomMax < c.Editor.ZoomMin {
		return fmt.Errorf("editor zoom range [%v, %v] is invalid", c.Editor.ZoomMin, c.Editor.ZoomMax)
	}
	if c.Editor.ZoomStep <= 0 {
		return fmt.Errorf("editor.zoom_step must be positive, got %v", c.Editor.ZoomStep)
	}
	if _, err := time.ParseDuration(c.Editor.PropagationDelay); err != nil {
		return fmt.Errorf("editor.propagation_delay: %w", err)
	}
	if c.Backend.Timeout != "" {
		if _, err := time.ParseDuration(c.Backend.Timeout); err != nil {
			return fmt.Errorf("backend.timeout: %w", err)
		}
	}
	return nil
}
