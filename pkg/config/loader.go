package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config file names looked up inside the config directory.
const (
	settingsFile  = "contentlens.yaml"
	providersFile = "providers.yaml"
)

// providersYAML is the providers.yaml file structure.
type providersYAML struct {
	Providers map[string]ProviderConfig `yaml:"providers"`
}

// Initialize loads, merges, validates, and returns ready-to-use settings.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load YAML files from configDir (both optional)
//  2. Expand environment variables ({{.VAR}} template syntax)
//  3. Merge user YAML over built-in defaults
//  4. Apply recognized environment overrides
//  5. Validate everything
func Initialize(_ context.Context, configDir string) (*Settings, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	settings := DefaultSettings()

	var user Settings
	found, err := loadYAML(configDir, settingsFile, &user)
	if err != nil {
		return nil, NewLoadError(settingsFile, err)
	}
	if found {
		if err := mergo.Merge(settings, &user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge settings: %w", err)
		}
		// mergo cannot distinguish "unset" from explicit false; user checkpoint
		// tables replace the defaults wholesale when present.
		if len(user.Checkpoints) > 0 {
			settings.Checkpoints = user.Checkpoints
		}
	}

	var provs providersYAML
	found, err = loadYAML(configDir, providersFile, &provs)
	if err != nil {
		return nil, NewLoadError(providersFile, err)
	}
	if found && len(provs.Providers) > 0 {
		if settings.Providers == nil {
			settings.Providers = make(map[string]ProviderConfig)
		}
		for name, p := range provs.Providers {
			settings.Providers[name] = p
		}
	}

	applyEnvOverrides(settings)

	if err := Validate(settings); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}

	log.Info("Configuration initialized successfully",
		"providers", len(settings.Providers),
		"checkpoints", len(settings.Checkpoints),
		"router_policy", settings.Router.Policy,
		"tenancy_strict", settings.Tenancy.Strict)

	return settings, nil
}

// loadYAML reads and parses one config file. A missing file is not an error;
// found reports whether the file existed.
func loadYAML(configDir, filename string, target any) (found bool, err error) {
	path := filepath.Join(configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return true, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return true, nil
}
