package bootstrap

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const loaderTestPrefix = "bootstrap:loader_test"

const jsonSeed = `{
  "name": "panel-a",
  "version": "1.2.0",
  "chipFeature": 2,
  "features": [
    {"type": 1, "values": [10, 20], "description": "sharpness"},
    {"type": 258, "values": []}
  ]
}`

const yamlSeed = `name: panel-a
version: 1.2.0
chipFeature: 2
features:
  - type: 1
    values: [10, 20]
    description: sharpness
  - type: 258
    values: []
`

const tomlSeed = `name = "panel-a"
version = "1.2.0"
chipFeature = 2

[[features]]
type = 1
values = [10, 20]
description = "sharpness"

[[features]]
type = 258
values = []
`

func TestParseSeedConfig_Formats(t *testing.T) {
	tests := []struct {
		file string
		data string
	}{
		{"seed.json", jsonSeed},
		{"seed.yaml", yamlSeed},
		{"seed.yml", yamlSeed},
		{"seed.toml", tomlSeed},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			cfg, err := ParseSeedConfig(tt.file, []byte(tt.data))
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
			}
			if cfg.Name != "panel-a" || cfg.Version != "1.2.0" || cfg.ChipFeature != 2 {
				t.Errorf("%s - header = %+v", loaderTestPrefix, cfg)
			}
			if len(cfg.Features) != 2 {
				t.Fatalf("%s - Features len = %d, want 2", loaderTestPrefix, len(cfg.Features))
			}
			if !reflect.DeepEqual(cfg.Features[0].Values, []int32{10, 20}) {
				t.Errorf("%s - Features[0].Values = %v", loaderTestPrefix, cfg.Features[0].Values)
			}
			if cfg.Features[0].Description != "sharpness" {
				t.Errorf("%s - Features[0].Description = %q", loaderTestPrefix, cfg.Features[0].Description)
			}
			if cfg.Features[1].Type != 258 {
				t.Errorf("%s - Features[1].Type = %d", loaderTestPrefix, cfg.Features[1].Type)
			}
		})
	}
}

func TestParseSeedConfig_Invalid(t *testing.T) {
	tests := []struct {
		file string
		data string
	}{
		{"bad.json", "{not json"},
		{"bad.yaml", "name: [unclosed"},
		{"bad.toml", "features = ["},
		{"negative.json", `{"chipFeature": -1}`},
	}
	for _, tt := range tests {
		if _, err := ParseSeedConfig(tt.file, []byte(tt.data)); err == nil {
			t.Errorf("%s - expected error for %s", loaderTestPrefix, tt.file)
		}
	}
}

func TestLoadSeedConfig_PathOrder(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "explicit.yaml")
	fromEnv := filepath.Join(dir, "env.json")
	os.WriteFile(explicit, []byte("name: explicit\nfeatures: []\n"), 0644)
	os.WriteFile(fromEnv, []byte(`{"name":"env","features":[]}`), 0644)
	t.Setenv(EnvSeedFile, fromEnv)

	cfg, err := LoadSeedConfig(explicit)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if cfg.Name != "explicit" {
		t.Errorf("%s - Name = %q, want explicit", loaderTestPrefix, cfg.Name)
	}

	cfg, _ = LoadSeedConfig(filepath.Join(dir, "missing.json"))
	if cfg.Name != "env" {
		t.Errorf("%s - Name = %q, want env", loaderTestPrefix, cfg.Name)
	}
}

func TestLoadSeedConfig_FallsBackToDefault(t *testing.T) {
	t.Setenv(EnvSeedFile, "")

	cfg, err := LoadSeedConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", loaderTestPrefix, err)
	}
	if cfg.Name != DefaultSeedConfig().Name || len(cfg.Features) != 0 {
		t.Errorf("%s - expected default config, got %+v", loaderTestPrefix, cfg)
	}
}

func TestLoadSeedFile_Missing(t *testing.T) {
	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Errorf("%s - expected error for missing file", loaderTestPrefix)
	}
}

func TestSeedConfig_DefaultsAndTypes(t *testing.T) {
	cfg := &SeedConfig{Features: []FeatureSeed{
		{Type: 3, Values: []int32{1}},
		{Type: 1, Values: nil},
		{Type: 3, Values: []int32{2}},
	}}

	defaults := cfg.Defaults()
	if !reflect.DeepEqual(defaults[3], []int32{2}) {
		t.Errorf("%s - defaults[3] = %v, want [2]", loaderTestPrefix, defaults[3])
	}
	if v, ok := defaults[1]; !ok || v == nil || len(v) != 0 {
		t.Errorf("%s - defaults[1] = %#v, want empty slice", loaderTestPrefix, v)
	}
	if !reflect.DeepEqual(cfg.Types(), []int32{3, 1}) {
		t.Errorf("%s - Types() = %v, want [3 1]", loaderTestPrefix, cfg.Types())
	}
}

func TestMergeSeedConfigs(t *testing.T) {
	base := &SeedConfig{
		Name:        "base",
		Version:     "1.0.0",
		ChipFeature: 1,
		Features:    []FeatureSeed{{Type: 1, Values: []int32{1}}, {Type: 2, Values: []int32{2}}},
	}
	override := &SeedConfig{
		Name:     "override",
		Features: []FeatureSeed{{Type: 2, Values: []int32{20}}, {Type: 3, Values: []int32{30}}},
	}

	merged := MergeSeedConfigs(base, override)
	if merged.Name != "override" || merged.Version != "1.0.0" || merged.ChipFeature != 1 {
		t.Errorf("%s - header = %+v", loaderTestPrefix, merged)
	}
	want := []FeatureSeed{{Type: 1, Values: []int32{1}}, {Type: 2, Values: []int32{20}}, {Type: 3, Values: []int32{30}}}
	if !reflect.DeepEqual(merged.Features, want) {
		t.Errorf("%s - Features = %+v, want %+v", loaderTestPrefix, merged.Features, want)
	}
	if len(base.Features) != 2 || base.Features[1].Values[0] != 2 {
		t.Errorf("%s - base was mutated: %+v", loaderTestPrefix, base.Features)
	}
}
