// Package semver checks agent versions against SemVer constraints.
package semver

import (
	"fmt"
	"regexp"
	"strconv"

	masterminds "github.com/Masterminds/semver/v3"
)

const logPrefix = "semver:semver"

var majorOnlyRegex = regexp.MustCompile(`^\d+$`)

// IsMajorOnly checks if a constraint is a major-only specifier (e.g., "3").
func IsMajorOnly(constraint string) bool {
	return majorOnlyRegex.MatchString(constraint)
}

// ValidateVersion returns an error if version is not a SemVer version.
func ValidateVersion(version string) error {
	if _, err := masterminds.NewVersion(version); err != nil {
		return fmt.Errorf("%s - invalid version %q: %w", logPrefix, version, err)
	}
	return nil
}

// ValidateConstraint returns an error if constraint is neither a major-only
// specifier nor a SemVer range such as "^1.2.0" or ">=1.0.0 <2.0.0".
func ValidateConstraint(constraint string) error {
	if IsMajorOnly(constraint) {
		return nil
	}
	if _, err := masterminds.NewConstraint(constraint); err != nil {
		return fmt.Errorf("%s - invalid version constraint %q: %w", logPrefix, constraint, err)
	}
	return nil
}

// Satisfies reports whether version satisfies constraint. An empty constraint
// matches everything; an unparsable version or constraint matches nothing.
func Satisfies(version, constraint string) bool {
	if constraint == "" {
		return true
	}
	sv, err := masterminds.NewVersion(version)
	if err != nil {
		return false
	}
	if IsMajorOnly(constraint) {
		major, err := strconv.ParseUint(constraint, 10, 64)
		return err == nil && sv.Major() == major
	}
	c, err := masterminds.NewConstraint(constraint)
	if err != nil {
		return false
	}
	return c.Check(sv)
}

// Compare orders two versions, returning -1, 0 or 1. Unparsable versions sort
// before parsable ones and compare equal to each other.
func Compare(a, b string) int {
	va, errA := masterminds.NewVersion(a)
	vb, errB := masterminds.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}
