package environment

import (
	"slices"
	"strings"

	"github.com/blang/semver"
)

// CompareVersions orders two version strings newest-first.
//
// It returns a negative number when a sorts before b, i.e. when a is the
// newer version. Strings that are not semantic versions fall back to a
// plain string comparison in the same (descending) direction.
func CompareVersions(a, b string) int {
	va, errA := parseVersion(a)
	vb, errB := parseVersion(b)
	if errA == nil && errB == nil {
		return -va.Compare(vb)
	}
	return -strings.Compare(a, b)
}

// parseVersion accepts versions with a v/V prefix and missing components.
func parseVersion(v string) (semver.Version, error) {
	v = strings.TrimPrefix(strings.TrimSpace(v), "V")
	return semver.ParseTolerant(v)
}

func sortRecords(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		return CompareVersions(a.Version, b.Version)
	})
}

func sortToolchains(toolchains []Toolchain) {
	slices.SortStableFunc(toolchains, func(a, b Toolchain) int {
		return CompareVersions(a.Version, b.Version)
	})
}

// LatestToolchain returns the newest toolchain of r.
func LatestToolchain(r Record) (Toolchain, bool) {
	if len(r.Toolchains) == 0 {
		return Toolchain{}, false
	}
	sorted := append([]Toolchain(nil), r.Toolchains...)
	sortToolchains(sorted)
	return sorted[0], true
}

// FindToolchain returns the toolchain of r with the given version.
func FindToolchain(r Record, version string) (Toolchain, bool) {
	for _, tc := range r.Toolchains {
		if tc.Version == version {
			return tc, true
		}
	}
	return Toolchain{}, false
}
