// Package version holds the bump type and semantic-version increment rules.
package version

import (
	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"

	"github.com/menghanl/release-gen/internal/relerr"
)

// BumpType selects which semantic-version component increments.
type BumpType string

const (
	Patch BumpType = "patch"
	Minor BumpType = "minor"
	Major BumpType = "major"
)

// ParseBumpType accepts exactly "patch", "minor" or "major". Case variants,
// empty strings and anything else fail with relerr.ErrUnknownBumpType.
func ParseBumpType(s string) (BumpType, error) {
	switch BumpType(s) {
	case Patch, Minor, Major:
		return BumpType(s), nil
	}
	return "", relerr.UnknownBumpType(s)
}

// Next returns the version that follows current under bump. A pre-release
// patches to its own release (1.2.3-rc.1 becomes 1.2.3).
func Next(current string, bump BumpType) (string, error) {
	v, err := semver.StrictNewVersion(current)
	if err != nil {
		return "", errors.Wrapf(err, "current version %q is not a semantic version", current)
	}
	var next semver.Version
	switch bump {
	case Patch:
		next = v.IncPatch()
	case Minor:
		next = v.IncMinor()
	case Major:
		next = v.IncMajor()
	default:
		return "", relerr.UnknownBumpType(string(bump))
	}
	return next.String(), nil
}

// Tag returns the release tag name for a version.
func Tag(v string) string {
	return "v" + v
}
