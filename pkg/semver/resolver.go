package semver

import (
	"errors"
	"fmt"
	"sort"

	masterminds "github.com/Masterminds/semver/v3"
)

const resolverLogPrefix = "semver:resolver"

// ErrIncompatible means a remote interface version does not satisfy the
// caller's constraint.
var ErrIncompatible = errors.New("incompatible interface version")

// SatisfiesRange reports whether an interface version satisfies rangeStr.
// Negative versions and unparseable ranges never match.
func SatisfiesRange(version int32, rangeStr string) bool {
	if version < 0 {
		return false
	}
	c, err := ParseConstraint(rangeStr)
	if err != nil {
		return false
	}
	return c.Check(masterminds.New(uint64(version), 0, 0, "", ""))
}

// CheckInterfaceVersion returns nil when remote satisfies constraint. It
// wraps ErrIncompatible otherwise.
func CheckInterfaceVersion(remote int32, constraint string) error {
	if _, err := ParseConstraint(constraint); err != nil {
		return err
	}
	if !SatisfiesRange(remote, constraint) {
		return fmt.Errorf("%s - %w: remote %s does not satisfy %q",
			resolverLogPrefix, ErrIncompatible, ToVersionString(remote), constraint)
	}
	return nil
}

// HighestSatisfying returns the highest version in versions that satisfies
// rangeStr.
func HighestSatisfying(versions []int32, rangeStr string) (int32, bool) {
	sorted := append([]int32(nil), versions...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	for _, v := range sorted {
		if SatisfiesRange(v, rangeStr) {
			return v, true
		}
	}
	return 0, false
}
