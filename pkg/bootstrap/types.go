// Package bootstrap loads the Iris feature seed file: default per-type values
// applied to a backend before the service starts answering calls.
package bootstrap

// FeatureSeed is the default configuration of one feature type.
type FeatureSeed struct {
	Type        int32   `json:"type" yaml:"type" toml:"type"`
	Values      []int32 `json:"values" yaml:"values" toml:"values"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// SeedConfig is the root of a seed file.
type SeedConfig struct {
	Name        string        `json:"name" yaml:"name" toml:"name"`
	Version     string        `json:"version" yaml:"version" toml:"version"`
	Instance    string        `json:"instance,omitempty" yaml:"instance,omitempty" toml:"instance,omitempty"`
	ChipFeature int32         `json:"chipFeature,omitempty" yaml:"chipFeature,omitempty" toml:"chipFeature,omitempty"`
	Supported   []int32       `json:"supported,omitempty" yaml:"supported,omitempty" toml:"supported,omitempty"`
	Features    []FeatureSeed `json:"features" yaml:"features" toml:"features"`
}

// Defaults returns the seeded values keyed by type. Later entries for the
// same type win.
func (c *SeedConfig) Defaults() map[int32][]int32 {
	out := make(map[int32][]int32, len(c.Features))
	for _, f := range c.Features {
		v := f.Values
		if v == nil {
			v = []int32{}
		}
		out[f.Type] = append([]int32(nil), v...)
	}
	return out
}

// Types returns the seeded feature types in file order without duplicates.
func (c *SeedConfig) Types() []int32 {
	seen := make(map[int32]bool, len(c.Features))
	var out []int32
	for _, f := range c.Features {
		if !seen[f.Type] {
			seen[f.Type] = true
			out = append(out, f.Type)
		}
	}
	return out
}
