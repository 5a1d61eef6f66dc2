// Package cli holds the shared wiring used by the switchyard commands:
// configuration loading and engine/store construction.
package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/switchyard-dev/switchyard/pkg/domain"
)

// DefaultConfigPath is probed when no --config flag is given.
const DefaultConfigPath = "switchyard.yaml"

// ModelConfig configures the model client. The API key is never read from
// the config file; it comes from SWITCHYARD_API_KEY or ANTHROPIC_API_KEY.
type ModelConfig struct {
	Name      string `yaml:"name"`
	MaxTokens int    `yaml:"max_tokens"`
	BaseURL   string `yaml:"base_url"`
}

// RedisConfig enables the Redis state store when an address is set.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Config is the switchyard.yaml layout.
type Config struct {
	LogLevel   string        `yaml:"log_level"`
	SessionDir string        `yaml:"session_dir"`
	Limits     domain.Limits `yaml:"limits"`
	Model      ModelConfig   `yaml:"model"`
	Redis      RedisConfig   `yaml:"redis"`
}

// LoadConfig reads the YAML config. A missing file at the default path is
// not an error; a missing file at an explicit path is.
func LoadConfig(path string, explicit bool) (*Config, error) {
	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
