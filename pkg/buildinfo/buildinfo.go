// Package buildinfo holds the version information injected at link time:
//
//	go build -ldflags "-X github.com/Flammable-Bunny/Lingle/pkg/buildinfo.Version=1.2.0 ..."
package buildinfo

import "fmt"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders the version line printed by "lingle version"
func String() string {
	return fmt.Sprintf("lingle %s (commit=%s, date=%s)", Version, Commit, Date)
}
