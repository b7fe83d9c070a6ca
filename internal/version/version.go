package version

import "fmt"

// Version is the release version embedded in the binary.
// Override at build time:
// go build -ldflags "-X github.com/oukeidos/subflow/internal/version.Version=0.2.0"
var Version = "0.1.0"

// Commit is the git commit hash embedded in the binary.
var Commit = "unknown"

// BuildDate is the RFC3339 build timestamp embedded in the binary.
var BuildDate = "unknown"

// Info returns a multi-line version string for CLI output.
func Info() string {
	return fmt.Sprintf("subflow %s\ncommit: %s\nbuild: %s", Version, Commit, BuildDate)
}

// UserAgent identifies subflow in outbound HTTP requests.
func UserAgent() string {
	return "subflow/" + Version
}
