package config

import (
	"fmt"
	"time"
)

// Config represents a sluice.yaml configuration file.
// All values are optional and act as defaults for sluice flags.
// CLI flags always override config values.
type Config struct {
	Bridge  BridgeConfig  `yaml:"bridge"`
	Host    HostConfig    `yaml:"host"`
	Adapter AdapterConfig `yaml:"adapter"`
}

// BridgeConfig holds caller-side defaults from the config file.
type BridgeConfig struct {
	MaxChunkSize   int      `yaml:"max_chunk_size"`
	SessionTimeout Duration `yaml:"session_timeout"`
	ReaperInterval Duration `yaml:"reaper_interval"`
	ChunkDelay     Duration `yaml:"chunk_delay"`
}

// HostConfig holds host-side defaults from the config file.
type HostConfig struct {
	PartialExpiry Duration `yaml:"partial_expiry"`
	SweepInterval Duration `yaml:"sweep_interval"`
}

// AdapterConfig holds session event adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate rejects config values the bridge cannot operate with.
// Zero values are allowed everywhere: they mean "use the default".
func (c *Config) Validate() error {
	if c.Bridge.MaxChunkSize < 0 {
		return fmt.Errorf("bridge.max_chunk_size must not be negative: %d", c.Bridge.MaxChunkSize)
	}
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		return fmt.Errorf("unknown adapter.type %q (want redis or webhook)", c.Adapter.Type)
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		return fmt.Errorf("adapter.url is required when adapter.type is set")
	}
	return nil
}
