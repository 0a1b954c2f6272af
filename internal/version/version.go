// Package version holds build metadata, set with -ldflags "-X" at link time
// and reported by the plunger -version flag.
package version

var (
	// Version is the release tag of the plunger daemon
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)
