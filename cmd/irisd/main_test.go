package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/irisd:main_test"

func TestUsage_NonEmpty(t *testing.T) {
	if len(usage) == 0 {
		t.Fatalf("%s - usage string is empty", mainTestPrefix)
	}
}

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "migrate", "ensure-db", "clear", "seed", "DATABASE_URL", "IRIS_INSTANCE"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestParseSeedArgs(t *testing.T) {
	tests := []struct {
		args          []string
		wantFile      string
		wantOverwrite bool
	}{
		{nil, "", false},
		{[]string{"seed.yaml"}, "seed.yaml", false},
		{[]string{"seed.yaml", "--overwrite"}, "seed.yaml", true},
		{[]string{"--overwrite", "seed.toml"}, "seed.toml", true},
		{[]string{"-f"}, "", true},
		{[]string{"a.json", "b.json"}, "a.json", false},
	}
	for _, tt := range tests {
		file, overwrite := parseSeedArgs(tt.args)
		if file != tt.wantFile || overwrite != tt.wantOverwrite {
			t.Errorf("%s - parseSeedArgs(%v) = %q, %v; want %q, %v",
				mainTestPrefix, tt.args, file, overwrite, tt.wantFile, tt.wantOverwrite)
		}
	}
}
