// Package buildinfo holds rclonetray version information set with
// -ldflags "-X github.com/rclonetray/rclonetray/internal/buildinfo.Version=...".
package buildinfo

var (
	Version    = "dev"
	Codename   = "Drift"
	CommitHash = "unknown"
	BuildDate  = "unknown"
)

// UserAgent identifies rclonetray in outgoing HTTP requests.
func UserAgent() string {
	return "rclonetray/" + Version
}
