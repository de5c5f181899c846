// Package config loads gatekeeper configuration from a YAML file with
// environment variable overrides (GATEKEEPER_*).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/sentinelops/gatekeeper/policy"
)

// Config is the full on-disk configuration of the gatekeeper daemon.
type Config struct {
	Server   ServerConfig   `koanf:"server" yaml:"server"`
	Storage  StorageConfig  `koanf:"storage" yaml:"storage"`
	Approval ApprovalConfig `koanf:"approval" yaml:"approval"`
	Tracker  TrackerConfig  `koanf:"tracker" yaml:"tracker"`
	Tracing  TracingConfig  `koanf:"tracing" yaml:"tracing"`
	Policy   *policy.Config `koanf:"policy" yaml:"policy,omitempty"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port     int  `koanf:"port" yaml:"port"`
	AllowAll bool `koanf:"allow_all" yaml:"allow_all"` // allow all CORS origins (dev mode)
}

// StorageConfig selects where decision snapshots and audit events live.
// An empty DataDir keeps everything in memory.
type StorageConfig struct {
	DataDir string `koanf:"data_dir" yaml:"data_dir"`
}

// ApprovalConfig bounds the pending-decision lifecycle.
type ApprovalConfig struct {
	TTL           time.Duration `koanf:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval" yaml:"sweep_interval"`
}

// TrackerConfig selects the publisher for escalated decisions. An empty
// DropDir uses the in-memory publisher.
type TrackerConfig struct {
	DropDir string `koanf:"drop_dir" yaml:"drop_dir"`
}

// TracingConfig controls the OpenTelemetry stdout/file exporter.
type TracingConfig struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	OutputFile string `koanf:"output_file" yaml:"output_file"`
}

// DefaultConfig returns the stock configuration: port 8090, in-memory
// storage, 24h approval TTL with a minutely sweep, default policy table.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8090},
		Approval: ApprovalConfig{
			TTL:           24 * time.Hour,
			SweepInterval: time.Minute,
		},
		Policy: policy.DefaultConfig(),
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides. Double underscore separates nesting
// levels: GATEKEEPER_SERVER__PORT -> server.port.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider("GATEKEEPER_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "GATEKEEPER_"))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Approval.TTL < 0 {
		return fmt.Errorf("approval ttl must be non-negative")
	}
	if c.Approval.SweepInterval < 0 {
		return fmt.Errorf("approval sweep_interval must be non-negative")
	}
	if c.Policy != nil {
		if err := c.Policy.Validate(); err != nil {
			return fmt.Errorf("invalid policy: %w", err)
		}
	}
	return nil
}
