package stream

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WriteConfig writes a stream config to a YAML file
func WriteConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ReadConfig reads a stream config from a YAML file. The config is not
// validated; callers pick strict or lenient handling.
func ReadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return &cfg, nil
}
