// Package version holds lensmatch build metadata injected via ldflags:
//
//	-ldflags "-X github.com/kailas-cloud/lensmatch/internal/version.Version=v0.3.0"
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the metadata for logs and the CLI -version flag.
func String() string {
	return Version + " (" + Commit + ", " + Date + ")"
}
