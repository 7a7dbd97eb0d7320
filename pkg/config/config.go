// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML scalars like "2s" or "500ms" into a time.Duration.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts back to the standard library type.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
}

// Feed describes the market-data websocket connection.
type Feed struct {
	URL           string   `yaml:"url"`
	Instruments   []string `yaml:"instruments"`
	ReconnectWait Duration `yaml:"reconnect_wait"`
}

// Archive configures the terminal-playbook store.
type Archive struct {
	Path string `yaml:"path"`
}

// Engine tunes the per-group event workers.
type Engine struct {
	NoopTimeout Duration `yaml:"noop_timeout"`
}

// Group is one group descriptor: an id plus its free-form rule text.
type Group struct {
	ID   string `yaml:"id"`
	Text string `yaml:"text"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App     App     `yaml:"app"`
	Feed    Feed    `yaml:"feed"`
	Archive Archive `yaml:"archive"`
	Engine  Engine  `yaml:"engine"`
	Groups  []Group `yaml:"groups"`
}

// Load reads a YAML file from disk and hydrates a Config struct. Environment
// variables override the listen addresses for containerized deployments.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		config.App.APIAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		config.App.MetricsAddr = v
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) validate() error {
	if c.Archive.Path == "" {
		c.Archive.Path = "./data/tradlet.db"
	}
	if c.App.APIAddr == "" {
		c.App.APIAddr = ":8080"
	}
	seen := make(map[string]bool, len(c.Groups))
	for _, g := range c.Groups {
		if g.ID == "" {
			return fmt.Errorf("config: group with empty id")
		}
		if seen[g.ID] {
			return fmt.Errorf("config: duplicate group id %q", g.ID)
		}
		seen[g.ID] = true
	}
	return nil
}
