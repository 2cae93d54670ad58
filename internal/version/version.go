package version

import "fmt"

// Version is the current version of pdf-mirror
const Version = "0.3.0"

// BuildTime is set during build via -ldflags
var BuildTime string

// GitCommit is set during build via -ldflags
var GitCommit string

// UserAgent is the default User-Agent sent with outgoing requests
func UserAgent() string {
	return "pdf-mirror/" + Version
}

// String returns a one-line description of the build
func String() string {
	commit := GitCommit
	if commit == "" {
		commit = "unknown"
	}
	built := BuildTime
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("pdf-mirror %s (commit %s, built %s)", Version, commit, built)
}
