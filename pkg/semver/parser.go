// Package semver checks remote interface versions against SemVer constraints.
// Interface versions are integers and compare as the major of "N.0.0".
package semver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:parser"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	major, err := strconv.Atoi(rangeStr)
	if err != nil {
		return -1
	}
	return major
}

// ToVersionString renders an interface version as a SemVer string.
func ToVersionString(version int32) string {
	return fmt.Sprintf("%d.0.0", version)
}

// ParseConstraint parses a constraint such as "1", "^1", ">=1 <3" or "1 - 2".
// A major-only constraint matches exactly that major.
func ParseConstraint(rangeStr string) (*masterminds.Constraints, error) {
	raw := strings.TrimSpace(rangeStr)
	if raw == "" {
		return nil, fmt.Errorf("%s - empty version constraint", logPrefix)
	}
	if IsMajorOnly(raw) {
		raw = "~" + raw + ".0.0 || " + raw + ".x"
	}
	c, err := masterminds.NewConstraint(raw)
	if err != nil {
		return nil, fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, rangeStr, err)
	}
	return c, nil
}
