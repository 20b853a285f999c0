// Package version provides version information for the oracle-exchange binary.
package version

// Version is the current release. Commit is set with -ldflags at build time.
var (
	Version = "0.3.0"
	Commit  = "dev"
)

// AgentString returns the user agent sent by the HTTP client.
// Format: oracle-exchange/v{version} ({commit})
func AgentString() string {
	return "oracle-exchange/v" + Version + " (" + Commit + ")"
}
