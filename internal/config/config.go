package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
)

// Config models huddle.yml.
type Config struct {
	Store struct {
		Backend string        `yaml:"backend" json:"backend"`
		Timeout time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"store" json:"store"`
	Notifier struct {
		RedisURL string        `yaml:"redis_url" json:"redis_url"`
		Timeout  time.Duration `yaml:"timeout" json:"timeout"`
	} `yaml:"notifier" json:"notifier"`
	Team struct {
		Supervisor string   `yaml:"supervisor" json:"supervisor"`
		Roster     []string `yaml:"roster" json:"roster"`
	} `yaml:"team" json:"team"`
	Reports struct {
		HighPriority int    `yaml:"high_priority" json:"high_priority"`
		Hour         int    `yaml:"hour" json:"hour"`
		Timezone     string `yaml:"timezone" json:"timezone"`
	} `yaml:"reports" json:"reports"`
	Polling struct {
		Interval time.Duration `yaml:"interval" json:"interval"`
	} `yaml:"polling" json:"polling"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with hd config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFS, BackendSQLite:
	default:
		return fmt.Errorf("config.store.backend must be %q or %q", BackendFS, BackendSQLite)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("config.store.timeout must be positive")
	}
	if c.Notifier.Timeout <= 0 {
		return fmt.Errorf("config.notifier.timeout must be positive")
	}
	if c.Team.Supervisor == "" {
		return fmt.Errorf("config.team.supervisor is required")
	}
	seen := map[string]bool{}
	for _, agent := range c.Team.Roster {
		if agent == "" {
			return fmt.Errorf("config.team.roster contains an empty agent")
		}
		if seen[agent] {
			return fmt.Errorf("config.team.roster lists %s twice", agent)
		}
		seen[agent] = true
	}
	if c.Reports.HighPriority < 1 || c.Reports.HighPriority > 5 {
		return fmt.Errorf("config.reports.high_priority must be between 1 and 5")
	}
	if c.Reports.Hour < 0 || c.Reports.Hour > 23 {
		return fmt.Errorf("config.reports.hour must be between 0 and 23")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("config.reports.timezone: %w", err)
	}
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("config.polling.interval must be positive")
	}
	return nil
}

// Location is the time zone that defines a report's calendar day.
func (c *Config) Location() (*time.Location, error) {
	if c.Reports.Timezone == "" || c.Reports.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Reports.Timezone)
}

// IsSupervisor reports whether actor is the configured supervisory actor.
func (c *Config) IsSupervisor(actor string) bool {
	return actor != "" && actor == c.Team.Supervisor
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "huddle.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `store:
  # fs keeps one JSON file per record under the workspace; sqlite uses .huddle/huddle.db
  backend: fs
  timeout: 5s

notifier:
  # leave empty to run in pure polling mode
  redis_url: ""
  timeout: 500ms

team:
  supervisor: ceo
  roster:
    - pm_claude
    - hardware_claude
    - backend_claude
    - frontend_claude
    - qa_claude

reports:
  high_priority: 4
  hour: 18
  timezone: Local

polling:
  interval: 10s
`
