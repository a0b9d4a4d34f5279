// Package config loads the demo host's configuration from YAML with
// environment overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/polyview-dev/polyview/internal/display"
)

type Config struct {
	App struct {
		// dev | prod; selects the logger encoding.
		Env      string `yaml:"env"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"app"`

	Server struct {
		HTTPPort    string `yaml:"http_port"`
		ConsolePort string `yaml:"console_port"`
		ConsoleTLS  bool   `yaml:"console_tls"`
	} `yaml:"server"`

	Snapshot struct {
		// Empty dir disables host-chosen persistence.
		Dir  string `yaml:"dir"`
		Name string `yaml:"name"`
	} `yaml:"snapshot"`

	MultiDisplay struct {
		Entrypoints []string             `yaml:"entrypoints"`
		PortBased   bool                 `yaml:"port_based"`
		Displays    []display.Descriptor `yaml:"displays"`
	} `yaml:"multi_display"`
}

// defaults lets the daemon run with no config file at all.
func defaults() Config {
	var c Config
	c.App.Env = "dev"
	c.App.LogLevel = "info"
	c.Server.HTTPPort = "7002"
	c.Server.ConsolePort = "7001"
	c.Snapshot.Name = "state"
	return c
}

// Load reads path (optional; empty path means defaults only) and then
// applies POLYVIEW_* environment overrides.
func Load(path string) (Config, error) {
	c := defaults()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(content, &c); err != nil {
			return c, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&c)
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("POLYVIEW_ENV"); v != "" {
		c.App.Env = v
	}
	if v := os.Getenv("POLYVIEW_LOG_LEVEL"); v != "" {
		c.App.LogLevel = v
	}
	if v := os.Getenv("POLYVIEW_HTTP_PORT"); v != "" {
		c.Server.HTTPPort = v
	}
	if v := os.Getenv("POLYVIEW_CONSOLE_PORT"); v != "" {
		c.Server.ConsolePort = v
	}
	if v := os.Getenv("POLYVIEW_DISABLE_TLS"); v == "true" {
		c.Server.ConsoleTLS = false
	}
	if v := os.Getenv("POLYVIEW_SNAPSHOT_DIR"); v != "" {
		c.Snapshot.Dir = v
	}
}
