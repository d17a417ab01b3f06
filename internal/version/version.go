// Package version carries the build identity stamped in at link time:
//
//	go build -ldflags "-X ctchen222/passplay/internal/version.Version=v1.2.0 -X ctchen222/passplay/internal/version.Build=42"
package version

import "fmt"

var (
	Version = "v0.1.0"
	Build   = "dev"
)

// String renders the version line shown with the instructions.
func String() string {
	return fmt.Sprintf("Version: %s, Build %s", Version, Build)
}
