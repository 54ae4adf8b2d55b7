// Package version exposes build metadata stamped at release time:
//
//	go build -ldflags "-X github.com/calyx-ai/retrieval/internal/version.Version=v1.2.0 ..."
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	BuiltAt = "unknown"
)

// String renders the stamped build info as one line for startup logs.
func String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuiltAt)
}
