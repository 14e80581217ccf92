// Package version exposes build metadata stamped at link time.
package version

import "fmt"

// Version contains the application version information.
// Set via build-time ldflags in release builds:
// go build -ldflags "-X git.home.luguber.info/inful/siteqa/internal/version.Version=v1.2.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info renders the one-line version banner shown by the version command.
func Info() string {
	return fmt.Sprintf("siteqa %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
