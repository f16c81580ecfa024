// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the build metadata on separate lines.
func String() string {
	return fmt.Sprintf("celo-ledger %s\ncommit: %s\nbuilt: %s\n", Version, Commit, BuildDate)
}
