// Package version exposes build-time version metadata.
package version

import "fmt"

// Populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the structured version payload served over the API.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// Get returns the current version info.
func Get() Info {
	return Info{Version: Version, Commit: Commit, Date: Date}
}

// String renders a single-line human-readable version.
func String() string {
	return fmt.Sprintf("kiln %s (commit %s, built %s)", Version, Commit, Date)
}
