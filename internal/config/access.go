package config

import (
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/ensemblectl/internal/apperrors"
	"github.com/mattjoyce/ensemblectl/internal/job"
)

// MachineNames returns the configured machine names, sorted.
func (c *Config) MachineNames() []string {
	names := make([]string, 0, len(c.Machines))
	for name := range c.Machines {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Machine returns the named machine, or the default machine for "".
func (c *Config) Machine(name string) (string, MachineConfig, error) {
	if name == "" {
		name = c.DefaultMachine
	}
	m, ok := c.Machines[name]
	if !ok {
		return name, MachineConfig{}, &apperrors.ErrNotFound{Type: "machine", Value: name}
	}
	return name, m, nil
}

// SinglePreset returns the built-in single-run preset with config overrides.
func (c *Config) SinglePreset() job.Preset {
	return job.DefaultSinglePreset().Merge(c.Presets.Single)
}

// EnsemblePreset returns the built-in ensemble preset with config overrides.
func (c *Config) EnsemblePreset() job.Preset {
	return job.DefaultEnsemblePreset().Merge(c.Presets.Ensemble)
}

// GetPath retrieves a value from the configuration using a dot-notation path.
func (c *Config) GetPath(path string) (any, error) {
	if strings.Contains(path, ":") {
		return c.GetEntity(path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

// GetEntity retrieves a first-class entity by type:name.
func (c *Config) GetEntity(address string) (any, error) {
	entityType, name, ok := strings.Cut(address, ":")
	if !ok {
		return nil, fmt.Errorf("invalid entity address format %q (expected type:name)", address)
	}

	switch entityType {
	case "machine":
		if name == "*" {
			return c.Machines, nil
		}
		_, m, err := c.Machine(name)
		if err != nil {
			return nil, err
		}
		return m, nil

	case "preset":
		switch name {
		case "single":
			return c.SinglePreset(), nil
		case "ensemble":
			return c.EnsemblePreset(), nil
		case "*":
			return map[string]job.Preset{"single": c.SinglePreset(), "ensemble": c.EnsemblePreset()}, nil
		}
		return nil, &apperrors.ErrNotFound{Type: "preset", Value: name}

	default:
		return nil, fmt.Errorf("unsupported entity type %q", entityType)
	}
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
