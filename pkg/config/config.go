// Package config loads and validates chronoview configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hsterling/chronoview/pkg/schema"
)

// Config represents the chronoview configuration.
type Config struct {
	// EncodingOverride forces a decoder: auto, self_describing, sbe, or
	// compact_tagged.
	EncodingOverride string `yaml:"encoding_override"`
	// MaxNestingDepth bounds self-describing document nesting.
	MaxNestingDepth int `yaml:"max_nesting_depth"`
	// IncludeMetadata yields queue metadata excerpts alongside data.
	IncludeMetadata bool `yaml:"include_metadata"`
	// Strict makes unknown type codes and unknown field ids fatal.
	Strict bool `yaml:"strict"`

	Schema SchemaConfig `yaml:"schema"`
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
}

// SchemaConfig points at class-definition sources.
type SchemaConfig struct {
	// Path is a source file, class file, or directory to load.
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP queue API.
type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

// CacheConfig configures the persistent message index cache.
type CacheConfig struct {
	// Dir holds the cache store. Empty disables caching.
	Dir string `yaml:"dir"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		EncodingOverride: "auto",
		MaxNestingDepth:  64,
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 8460,
		},
	}
}

// LoadConfig loads configuration from the specified path, applying defaults
// for anything the file leaves unset.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}
	if !filepath.IsAbs(configPath) {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("invalid config path: %w", err)
		}
		configPath = absPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks option values and their combinations.
func (c *Config) Validate() error {
	if _, err := schema.ParseEncoding(c.EncodingOverride); err != nil {
		return fmt.Errorf("invalid encoding_override %q", c.EncodingOverride)
	}
	if c.MaxNestingDepth <= 0 {
		return fmt.Errorf("max_nesting_depth must be positive, got %d", c.MaxNestingDepth)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port out of range: %d", c.Server.Port)
	}
	return nil
}

// Encoding returns the parsed encoding override.
func (c *Config) Encoding() schema.Encoding {
	e, _ := schema.ParseEncoding(c.EncodingOverride)
	return e
}
