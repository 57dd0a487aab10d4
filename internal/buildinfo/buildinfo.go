// Package buildinfo holds the binary's release version, parsed into a
// semver.Version at init so callers can compare it (e.g. the source
// subcommands warning about a server reporting an incompatible major
// version) instead of doing string comparisons.
package buildinfo

import (
	"fmt"
	"strings"

	ver "github.com/hashicorp/go-version"
)

var (
	// rawReleaseVersion is overwritten at link time with -X.
	rawReleaseVersion = "0.0.0"

	releaseVersion = ver.Must(ver.NewSemver(strings.TrimSuffix(rawReleaseVersion, "\n")))

	// gitCommit is overwritten at link time with -X.
	gitCommit = "unknown"
)

// ReleaseVersion returns the parsed build version.
func ReleaseVersion() *ver.Version { return releaseVersion }

// GitCommit returns the git SHA this binary was built from.
func GitCommit() string { return gitCommit }

// DisplayString is the human-readable "version (commit)" line printed by
// the version command and sent by the CLI client as its User-Agent suffix.
func DisplayString() string {
	return fmt.Sprintf("%s (%s)", releaseVersion.String(), gitCommit)
}

// CompatibleWith reports whether a server-reported version string is
// compatible with this binary: the major versions must match; minor and
// patch versions are not compared.
func CompatibleWith(serverVersion string) (bool, error) {
	sv, err := ver.NewSemver(strings.TrimSuffix(serverVersion, "\n"))
	if err != nil {
		return false, err
	}
	return sv.Segments()[0] == releaseVersion.Segments()[0], nil
}
