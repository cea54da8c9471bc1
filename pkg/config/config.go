// Package config loads the proxy's YAML configuration document: the
// replica set, health-check cadence, command-log directory, and initial
// selection strategy. Loading is the only place the core treats
// malformed input as fatal (ConfigError).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sqlfront/proxy/pkg/errs"
	"github.com/sqlfront/proxy/pkg/strategy"
)

// Database describes one replica entry in the configuration document.
// Weight is a pointer so an omitted field (nil) can be distinguished from
// an explicit weight of 0, which validate rejects.
type Database struct {
	Name   string `yaml:"name"`
	URL    string `yaml:"url"`
	Weight *int   `yaml:"weight"`
}

// EffectiveWeight returns the configured weight, or 1 if unset. Callers
// use this instead of reading Weight directly once the config has passed
// validate, which guarantees Weight is either nil or >= 1.
func (d Database) EffectiveWeight() int {
	if d.Weight == nil {
		return 1
	}
	return *d.Weight
}

// Health holds the health-check cadence and probe deadline.
type Health struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	TimeoutMillis   int `yaml:"timeoutMillis"`
}

// Listener is an optional HTTP-style listen address; an empty Addr
// disables the corresponding server.
type Listener struct {
	ListenAddr string `yaml:"listenAddr"`
}

// Config is the parsed, defaulted, and validated configuration document.
type Config struct {
	Databases     []Database `yaml:"databases"`
	Health        Health     `yaml:"health"`
	CommandLogDir string     `yaml:"commandLogDir"`
	Strategy      string     `yaml:"strategy"`
	Metrics       Listener   `yaml:"metrics"`
	HTTP          Listener   `yaml:"http"`
}

// Load reads path, parses it as YAML, applies defaults, and validates
// it. Any problem is a *errs.ConfigError.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Health.IntervalSeconds <= 0 {
		c.Health.IntervalSeconds = 5
	}
	if c.Health.TimeoutMillis <= 0 {
		c.Health.TimeoutMillis = 500
	}
	if c.CommandLogDir == "" {
		c.CommandLogDir = "command_logs/"
	}
	if c.Strategy == "" {
		c.Strategy = "round_robin"
	}
}

func (c *Config) validate() error {
	if len(c.Databases) == 0 {
		return &errs.ConfigError{Reason: "no databases configured"}
	}

	seen := make(map[string]bool, len(c.Databases))
	for _, db := range c.Databases {
		if db.Name == "" {
			return &errs.ConfigError{Reason: "database entry missing name"}
		}
		if seen[db.Name] {
			return &errs.ConfigError{Reason: fmt.Sprintf("duplicate database name %q", db.Name)}
		}
		seen[db.Name] = true
		if db.URL == "" {
			return &errs.ConfigError{Reason: fmt.Sprintf("database %q missing url", db.Name)}
		}
		if db.Weight != nil && *db.Weight < 1 {
			return &errs.ConfigError{Reason: fmt.Sprintf("database %q weight must be >= 1, got %d", db.Name, *db.Weight)}
		}
	}

	if _, ok := strategy.ByName(c.Strategy); !ok {
		return &errs.ConfigError{Reason: fmt.Sprintf("unrecognised strategy %q", c.Strategy)}
	}
	return nil
}

// HealthInterval is Health.IntervalSeconds as a time.Duration.
func (c *Config) HealthInterval() time.Duration {
	return time.Duration(c.Health.IntervalSeconds) * time.Second
}

// HealthTimeout is Health.TimeoutMillis as a time.Duration.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Health.TimeoutMillis) * time.Millisecond
}
