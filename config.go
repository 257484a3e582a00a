package chatrelay

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML parsing of values like "10s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("chatrelay: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the top-level relay configuration.
type Config struct {
	// DefaultProvider is the fallback for models no registry entry or model
	// family matches.
	DefaultProvider string `yaml:"default_provider"`

	// FirstChunkTimeout bounds time-to-first-byte from the upstream adapter.
	// Total streaming duration is never bounded; long responses are valid.
	FirstChunkTimeout Duration `yaml:"first_chunk_timeout"`

	// KeystorePath locates the credential store file.
	KeystorePath string `yaml:"keystore_path"`

	Models    []ModelMapping   `yaml:"models"`
	Providers []ProviderConfig `yaml:"providers"`
}

// ModelMapping is an explicit model → provider registry entry.
type ModelMapping struct {
	Model    string `yaml:"model"`
	Provider string `yaml:"provider"`
}

// ProviderConfig configures a single provider adapter.
type ProviderConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("chatrelay: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("chatrelay: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.DefaultProvider == "" {
		return fmt.Errorf("chatrelay: config: default_provider is required")
	}

	seen := make(map[string]bool, len(c.Models))
	for i, m := range c.Models {
		if m.Model == "" {
			return fmt.Errorf("chatrelay: config: models[%d]: model is required", i)
		}
		if m.Provider == "" {
			return fmt.Errorf("chatrelay: config: models[%d] (%s): provider is required", i, m.Model)
		}
		if seen[m.Model] {
			return fmt.Errorf("chatrelay: config: duplicate model entry %q", m.Model)
		}
		seen[m.Model] = true
	}

	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("chatrelay: config: providers[%d]: name is required", i)
		}
		if names[p.Name] {
			return fmt.Errorf("chatrelay: config: duplicate provider %q", p.Name)
		}
		names[p.Name] = true
	}

	return nil
}

// Registry builds a ModelRegistry from the config's explicit entries and
// default provider.
func (c Config) Registry() *ModelRegistry {
	r := NewModelRegistry(c.DefaultProvider)
	for _, m := range c.Models {
		r.Register(m.Model, m.Provider)
	}
	return r
}
