package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// DefaultDatabasePath is used when the system config names no database.
const DefaultDatabasePath = "matchup.db"

// DatabaseConfig locates the observation catalog.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// AutoMigrate applies pending schema migrations on open.
	AutoMigrate bool `yaml:"auto_migrate"`
}

// OutputConfig controls where run artefacts are written.
type OutputConfig struct {
	Directory string `yaml:"directory"`
}

// SystemConfig is the installation-wide configuration shared by every use
// case: the catalog location and the reader bound to each sensor.
type SystemConfig struct {
	Database DatabaseConfig `yaml:"database"`
	Output   OutputConfig   `yaml:"output"`
	// Readers maps a sensor name to a reader tag. A use case sensor without
	// an explicit reader falls back to this table.
	Readers map[string]string `yaml:"readers"`
}

// LoadSystemConfig reads and parses a YAML system config.
func LoadSystemConfig(path string) (*SystemConfig, error) {
	data, err := readConfigFile(path, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}
	return ParseSystemConfig(data)
}

// ParseSystemConfig decodes a YAML system config and applies defaults.
func ParseSystemConfig(data []byte) (*SystemConfig, error) {
	var cfg SystemConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parse system config: %v", ErrInvalidConfig, err)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = DefaultDatabasePath
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "."
	}
	for sensor, tag := range cfg.Readers {
		if tag == "" {
			return nil, fmt.Errorf("%w: reader for sensor %q is empty", ErrInvalidConfig, sensor)
		}
	}
	return &cfg, nil
}

// ReaderFor resolves the reader tag for a use case sensor.
func (c *SystemConfig) ReaderFor(s Sensor) (string, bool) {
	if s.Reader != "" {
		return s.Reader, true
	}
	tag, ok := c.Readers[s.Name]
	return tag, ok
}
