package bootstrap

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const logPrefix = "bootstrap:loader"

// EnvSeedFile names the environment variable consulted after explicit paths.
const EnvSeedFile = "IRIS_SEED_FILE"

// LoadSeedConfig loads the first readable seed file. It tries the paths passed
// in, then IRIS_SEED_FILE, then config/iris-seed.{json,yaml,toml}. When none is
// readable it returns the default (empty) config.
func LoadSeedConfig(paths ...string) (*SeedConfig, error) {
	all := make([]string, 0, len(paths)+4)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv(EnvSeedFile); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/iris-seed.json", "config/iris-seed.yaml", "config/iris-seed.toml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		cfg, err := ParseSeedConfig(p, data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse seed file %s: %v", logPrefix, p, err))
			continue
		}
		slog.Info(fmt.Sprintf("%s - Loaded seed config %s from %s (%d features)", logPrefix, cfg.Name, p, len(cfg.Features)))
		return cfg, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default seed config", logPrefix))
	return DefaultSeedConfig(), nil
}

// LoadSeedFile loads exactly one seed file and fails when it is unreadable.
func LoadSeedFile(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s - read %s: %w", logPrefix, path, err)
	}
	return ParseSeedConfig(path, data)
}

// ParseSeedConfig decodes data in the format implied by name's extension.
// Unknown extensions are read as JSON.
func ParseSeedConfig(name string, data []byte) (*SeedConfig, error) {
	var cfg SeedConfig
	var err error
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%s - decode %s: %w", logPrefix, name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects a config whose chip feature is negative.
func (c *SeedConfig) Validate() error {
	if c.ChipFeature < 0 {
		return fmt.Errorf("%s - chipFeature must not be negative, got %d", logPrefix, c.ChipFeature)
	}
	return nil
}

// DefaultSeedConfig returns the fallback config: no seeded features.
func DefaultSeedConfig() *SeedConfig {
	return &SeedConfig{
		Name:    "iris-default",
		Version: "1.0.0",
	}
}

// MergeSeedConfigs overlays override on base. Features of override replace
// base features of the same type.
func MergeSeedConfigs(base, override *SeedConfig) *SeedConfig {
	merged := *base
	merged.Features = nil

	byType := make(map[int32]FeatureSeed)
	var order []int32
	for _, src := range [][]FeatureSeed{base.Features, override.Features} {
		for _, f := range src {
			if _, ok := byType[f.Type]; !ok {
				order = append(order, f.Type)
			}
			byType[f.Type] = f
		}
	}
	for _, t := range order {
		merged.Features = append(merged.Features, byType[t])
	}

	if override.Name != "" {
		merged.Name = override.Name
	}
	if override.Version != "" {
		merged.Version = override.Version
	}
	if override.Instance != "" {
		merged.Instance = override.Instance
	}
	if override.ChipFeature != 0 {
		merged.ChipFeature = override.ChipFeature
	}
	if len(override.Supported) > 0 {
		merged.Supported = append([]int32(nil), override.Supported...)
	}
	return &merged
}
