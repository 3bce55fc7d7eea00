// Package version carries the build identity. Set it at build time:
//
//	go build -ldflags "-X provisioncode-go/version.Version=v1.2.3"
//
// Host builds fill the commit from VCS build info when ldflags leave it
// empty; device builds stay with the linked values.
package version

var (
	Version = "0.0.0-dev"
	Commit  = ""
)

// Full is "<version> (<commit>)", or just the version when no commit is
// known.
func Full() string {
	if Commit == "" {
		return Version
	}
	return Version + " (" + Commit + ")"
}
