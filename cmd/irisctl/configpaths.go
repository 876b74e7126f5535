package main

import (
	"os"
	"path/filepath"
)

// configDir returns $XDG_CONFIG_HOME/iris-bridge or ~/.config/iris-bridge.
func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "iris-bridge")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "iris-bridge")
	}
	return ""
}

// configCandidatePaths builds candidate paths for config files per format.
// If userPath is provided, it is prioritized and routed to the matching loader by extension.
func configCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }

	if userPath != "" {
		switch filepath.Ext(userPath) {
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&jsonPaths, userPath)
		}
	}

	dirs := []string{}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if d := configDir(); d != "" {
		dirs = append(dirs, d)
	}
	for _, dir := range dirs {
		base := filepath.Join(dir, "irisctl")
		add(&jsonPaths, base+".json")
		add(&yamlPaths, base+".yaml")
		add(&yamlPaths, base+".yml")
		add(&tomlPaths, base+".toml")
	}
	return jsonPaths, yamlPaths, tomlPaths
}
