package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/fleet"
)

// ServiceSettings is one entry of the fleet manifest.
type ServiceSettings struct {
	Enabled     bool   `yaml:"enabled"`
	Port        int    `yaml:"port"`
	Description string `yaml:"description"`
}

// ServicesConfig is the fleet manifest, usually config/services.yaml.
type ServicesConfig struct {
	Convention *fleet.Convention           `yaml:"convention,omitempty"`
	Services   map[string]*ServiceSettings `yaml:"services"`
}

// LoadServicesConfigFromPath loads the fleet manifest from path.
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}
	return ParseServicesConfig(data)
}

// ParseServicesConfig decodes and validates a fleet manifest.
func ParseServicesConfig(data []byte) (*ServicesConfig, error) {
	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, svcerrors.WrapConfiguration(err, "failed to parse services config")
	}

	ports := make(map[int]string, len(cfg.Services))
	for _, id := range cfg.IDs() {
		settings := cfg.Services[id]
		if settings == nil {
			return nil, svcerrors.Configuration("service %s: settings are empty", id)
		}
		if settings.Port <= 0 || settings.Port > 65535 {
			return nil, svcerrors.Configuration("service %s: port is required", id)
		}
		if other, ok := ports[settings.Port]; ok {
			return nil, svcerrors.Configuration("service %s: port %d already used by %s", id, settings.Port, other)
		}
		ports[settings.Port] = id
	}

	if cfg.Convention != nil {
		conv := cfg.Convention.WithDefaults()
		if err := conv.Validate(); err != nil {
			return nil, err
		}
		cfg.Convention = &conv
	}
	return &cfg, nil
}

// LoadServicesConfigOrDefault loads the manifest at path, falling back to the
// defaults only when the file does not exist.
func LoadServicesConfigOrDefault(path string) (*ServicesConfig, error) {
	cfg, err := LoadServicesConfigFromPath(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultServicesConfig(), nil
	}
	return cfg, err
}

// DefaultServicesConfig returns the manifest used when none is deployed.
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"order": {
				Enabled:     true,
				Port:        8081,
				Description: "Order service",
			},
			"product": {
				Enabled:     true,
				Port:        8082,
				Description: "Product catalogue service",
			},
			"user": {
				Enabled:     true,
				Port:        8083,
				Description: "User service",
			},
		},
	}
}

// IDs returns the configured service IDs in sorted order.
func (c *ServicesConfig) IDs() []string {
	ids := make([]string, 0, len(c.Services))
	for id := range c.Services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetSettings returns the settings for id.
func (c *ServicesConfig) GetSettings(id string) (*ServiceSettings, bool) {
	s, ok := c.Services[id]
	return s, ok && s != nil
}

// IsEnabled reports whether id is listed and enabled.
func (c *ServicesConfig) IsEnabled(id string) bool {
	s, ok := c.GetSettings(id)
	return ok && s.Enabled
}

// FleetConvention returns the manifest's convention, or the default one.
func (c *ServicesConfig) FleetConvention() fleet.Convention {
	if c.Convention != nil {
		return *c.Convention
	}
	return fleet.DefaultConvention()
}
