// Package version holds build metadata injected via ldflags.
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// UserAgent is sent with every GitLab API request.
func UserAgent() string {
	return "gitlab-search/" + Version
}

// String renders the version line printed by -V and the version command.
func String() string {
	return "gitlab-search " + Version + " (commit " + Commit + ", built " + Date + ")"
}
