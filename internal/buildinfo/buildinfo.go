// Package buildinfo holds version and build metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
)

// ClientName is the identity advertised to gateways during initialize
// and used as the User-Agent product token.
const ClientName = "mcpgw-cli"

// These variables are set at build time via -ldflags.
var (
	Version   = "1.0.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Info returns all build and runtime info as a map.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	}
}

// UserAgent returns the User-Agent header value for outbound requests.
func UserAgent() string {
	return ClientName + "/" + Version
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("mcpgw %s (%s) built %s", Version, GitCommit, BuildTime)
}
