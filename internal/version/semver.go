// Package version parses rclone version strings and checks for newer releases.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Semver represents a semantic version. Pre-release and build suffixes
// ("-beta.7905", "-DEV", "+abc") are dropped when parsing.
type Semver struct {
	Major int
	Minor int
	Patch int
}

// ParseSemver parses a version string like "1.2.3", "v1.2.3", "v1.66.0-DEV"
// or "v1.67" (patch defaults to 0).
func ParseSemver(s string) (Semver, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")
	if i := strings.IndexAny(s, "-+ "); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Semver{}, fmt.Errorf("invalid semver: %q", s)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return Semver{}, fmt.Errorf("invalid major version: %w", err)
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return Semver{}, fmt.Errorf("invalid minor version: %w", err)
	}
	patch := 0
	if len(parts) == 3 {
		patch, err = strconv.Atoi(parts[2])
		if err != nil {
			return Semver{}, fmt.Errorf("invalid patch version: %w", err)
		}
	}

	return Semver{Major: major, Minor: minor, Patch: patch}, nil
}

// MustParse is ParseSemver for constants.
func MustParse(s string) Semver {
	v, err := ParseSemver(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor.patch".
func (v Semver) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// LessThan returns true if v < other.
func (v Semver) LessThan(other Semver) bool {
	return semver.Compare("v"+v.String(), "v"+other.String()) < 0
}

// AtLeast returns true if v >= other.
func (v Semver) AtLeast(other Semver) bool {
	return !v.LessThan(other)
}

// FromVersionOutput extracts the version from the first line of
// `rclone version` output ("rclone v1.66.0" -> 1.66.0).
func FromVersionOutput(output string) (Semver, error) {
	first := strings.TrimSpace(strings.SplitN(output, "\n", 2)[0])
	fields := strings.Fields(first)
	if len(fields) == 0 {
		return Semver{}, fmt.Errorf("empty version output")
	}
	return ParseSemver(fields[len(fields)-1])
}
