// Package version provides the version string for silverctl.
package version

import "strings"

// Version is the release version, overridable at build time via
// -ldflags "-X .../internal/version.Version=v1.2.3".
var Version = "dev"

// String normalizes Version to a single leading 'v' for display, whether it
// came from a git tag (already prefixed) or a dev build (bare).
func String() string {
	return "v" + strings.TrimPrefix(Version, "v")
}
