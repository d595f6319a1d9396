// Package version exposes build information set with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/studentid/walletpass/internal/version.version=1.2.0"
package version

import "runtime/debug"

var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

// Info describes the running binary
type Info struct {
	Version   string
	BuildDate string
	GitCommit string
}

// Get returns the build information. When the commit was not injected at build time
// the vcs revision recorded by the go toolchain is used.
func Get() Info {
	info := Info{Version: version, BuildDate: buildDate, GitCommit: gitCommit}

	if info.GitCommit == "unknown" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					info.GitCommit = s.Value
				case "vcs.time":
					if info.BuildDate == "unknown" {
						info.BuildDate = s.Value
					}
				}
			}
		}
	}
	return info
}
