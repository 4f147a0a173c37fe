package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// ErrInvalidConfig marks malformed or incomplete configuration. It is fatal
// for a run and is returned before any observation is touched.
var ErrInvalidConfig = errors.New("invalid configuration")

// Strategy tags understood by the matchup tool.
const (
	StrategyPolarOrbiting       = "polar-orbiting"
	StrategyInsituPolarOrbiting = "insitu-polar-orbiting"
)

// Sensor names a sensor and the reader tag that decodes its files.
type Sensor struct {
	Name   string `json:"name"`
	Reader string `json:"reader,omitempty"`
}

// ScreeningConfig is one entry of the ordered screening list. Params are
// decoded by the screening's factory.
type ScreeningConfig struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params,omitempty"`
}

// UseCaseConfig describes one matchup use case: which sensors are matched and
// which conditions and screenings refine the candidates. Optional thresholds
// are pointers so that an absent option is distinguishable from zero.
type UseCaseConfig struct {
	Name            string  `json:"name"`
	Strategy        *string `json:"strategy,omitempty"`
	PrimarySensor   Sensor  `json:"primary-sensor"`
	SecondarySensor Sensor  `json:"secondary-sensor"`

	TimeDeltaSeconds   *int64   `json:"time-delta-seconds,omitempty"`
	MaxPixelDistanceKm *float64 `json:"max-pixel-distance-km,omitempty"`

	Screenings []ScreeningConfig `json:"screenings,omitempty"`

	OutputPath *string `json:"output-path,omitempty"`
	Workers    *int    `json:"workers,omitempty"`
}

// LoadUseCaseConfig reads and validates a use case from a JSON file.
func LoadUseCaseConfig(path string) (*UseCaseConfig, error) {
	data, err := readConfigFile(path, ".json")
	if err != nil {
		return nil, err
	}
	return ParseUseCaseConfig(data)
}

// ParseUseCaseConfig decodes and validates a JSON use case. Unknown fields are
// rejected.
func ParseUseCaseConfig(data []byte) (*UseCaseConfig, error) {
	var cfg UseCaseConfig
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse use case JSON: %v", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// maxTimeDeltaSeconds is the largest delta a time.Duration can hold.
const maxTimeDeltaSeconds = math.MaxInt64 / int64(time.Second)

// Validate checks mandatory fields and value ranges.
func (c *UseCaseConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if c.PrimarySensor.Name == "" {
		return fmt.Errorf("%w: primary-sensor.name is required", ErrInvalidConfig)
	}
	if c.SecondarySensor.Name == "" {
		return fmt.Errorf("%w: secondary-sensor.name is required", ErrInvalidConfig)
	}
	if c.TimeDeltaSeconds != nil && *c.TimeDeltaSeconds < 0 {
		return fmt.Errorf("%w: time-delta-seconds must be non-negative, got %d", ErrInvalidConfig, *c.TimeDeltaSeconds)
	}
	if c.TimeDeltaSeconds != nil && *c.TimeDeltaSeconds > maxTimeDeltaSeconds {
		return fmt.Errorf("%w: time-delta-seconds must be at most %d, got %d", ErrInvalidConfig, maxTimeDeltaSeconds, *c.TimeDeltaSeconds)
	}
	if c.MaxPixelDistanceKm != nil && *c.MaxPixelDistanceKm < 0 {
		return fmt.Errorf("%w: max-pixel-distance-km must be non-negative, got %f", ErrInvalidConfig, *c.MaxPixelDistanceKm)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalidConfig, *c.Workers)
	}
	for i, s := range c.Screenings {
		if s.Name == "" {
			return fmt.Errorf("%w: screenings[%d] has no name", ErrInvalidConfig, i)
		}
	}
	return nil
}

// HasTimeDelta reports whether a time-delta condition is configured.
func (c *UseCaseConfig) HasTimeDelta() bool { return c.TimeDeltaSeconds != nil }

// GetTimeDelta returns the configured time delta, or zero when unset.
func (c *UseCaseConfig) GetTimeDelta() time.Duration {
	if c.TimeDeltaSeconds == nil {
		return 0
	}
	return time.Duration(*c.TimeDeltaSeconds) * time.Second
}

// HasMaxPixelDistance reports whether a distance condition is configured.
func (c *UseCaseConfig) HasMaxPixelDistance() bool { return c.MaxPixelDistanceKm != nil }

// GetMaxPixelDistanceKm returns the configured distance, or zero when unset.
func (c *UseCaseConfig) GetMaxPixelDistanceKm() float64 {
	if c.MaxPixelDistanceKm == nil {
		return 0
	}
	return *c.MaxPixelDistanceKm
}

// GetStrategy returns the strategy tag or the default.
func (c *UseCaseConfig) GetStrategy() string {
	if c.Strategy == nil || *c.Strategy == "" {
		return StrategyPolarOrbiting // default
	}
	return *c.Strategy
}

// GetWorkers returns the worker count or the default.
func (c *UseCaseConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1 // default
	}
	return *c.Workers
}

// GetOutputPath returns the output path or the empty string.
func (c *UseCaseConfig) GetOutputPath() string {
	if c.OutputPath == nil {
		return ""
	}
	return *c.OutputPath
}

func readConfigFile(path string, exts ...string) ([]byte, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); !slices.Contains(exts, ext) {
		return nil, fmt.Errorf("config file must have %s extension, got %q", strings.Join(exts, " or "), ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return data, nil
}
