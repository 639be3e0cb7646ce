package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LocationConfig is one service-area office offered in the booking flow.
type LocationConfig struct {
	ID                      string `yaml:"id"`
	Name                    string `yaml:"name"`
	Address                 string `yaml:"address"`
	IsActive                bool   `yaml:"is_active"`
	DefaultInspectionTypeID string `yaml:"default_inspection_type_id,omitempty"`
}

// LocationsConfig is the root configuration for locations.yaml. It overrides
// the CRM location list when present so a service area can be taken offline
// without touching CRM records.
type LocationsConfig struct {
	Locations []LocationConfig `yaml:"locations"`
}

// LoadLocationsConfig loads and validates the locations file.
func LoadLocationsConfig(path string) (*LocationsConfig, error) {
	if path == "" {
		path = "configs/locations.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locations config: %w", err)
	}

	var cfg LocationsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse locations config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate locations config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *LocationsConfig) Validate() error {
	if len(c.Locations) == 0 {
		return fmt.Errorf("no locations defined")
	}
	seen := make(map[string]bool, len(c.Locations))
	for i, loc := range c.Locations {
		if loc.ID == "" {
			return fmt.Errorf("location %d: missing id", i)
		}
		if loc.Name == "" {
			return fmt.Errorf("location %s: missing name", loc.ID)
		}
		if seen[loc.ID] {
			return fmt.Errorf("location %s: duplicate id", loc.ID)
		}
		seen[loc.ID] = true
	}
	return nil
}

// Active returns only the locations currently open for booking.
func (c *LocationsConfig) Active() []LocationConfig {
	active := make([]LocationConfig, 0, len(c.Locations))
	for _, loc := range c.Locations {
		if loc.IsActive {
			active = append(active, loc)
		}
	}
	return active
}
