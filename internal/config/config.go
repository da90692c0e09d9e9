// Package config models the client configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL = "http://localhost:8080/api"
	DefaultWSURL  = "ws://localhost:8080/ws"
)

// Config models taskflow.yml.
type Config struct {
	API struct {
		URL string `yaml:"url"`
	} `yaml:"api"`
	Push struct {
		URL string `yaml:"url"`
	} `yaml:"push"`
}

// Default returns the local-development configuration.
func Default() *Config {
	var cfg Config
	cfg.API.URL = DefaultAPIURL
	cfg.Push.URL = DefaultWSURL
	return &cfg
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, ".taskflow", "taskflow.yml")
}

// LoadOptional returns the defaults when the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes, filling in
// defaults for absent fields.
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

// Validate ensures the addresses are usable.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.API.URL, "http://") && !strings.HasPrefix(c.API.URL, "https://") {
		return fmt.Errorf("config.api.url must be an http(s) address")
	}
	if !strings.HasPrefix(c.Push.URL, "ws://") && !strings.HasPrefix(c.Push.URL, "wss://") {
		return fmt.Errorf("config.push.url must be a ws(s) address")
	}
	return nil
}
