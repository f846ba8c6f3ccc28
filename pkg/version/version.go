// Package version provides build and version information for roomsearch.
//
// Release builds set Version, Commit and Date through ldflags:
//
//	-X github.com/Aman-CERP/roomsearch/pkg/version.Version=$(VERSION)
//
// Builds without ldflags, such as go install, fall back to the module
// version and VCS stamp the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

// Build information set via ldflags at build time.
var (
	// Version is the roomsearch version.
	Version = "dev"

	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary.
	GoVersion = runtime.Version()
)

const shortCommitLen = 12

// BuildInfo is structured version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

var embedded = sync.OnceValue(func() *debug.BuildInfo {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	return bi
})

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return withEmbedded(BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}, embedded())
}

// withEmbedded fills fields ldflags left at their defaults from the
// toolchain's build info. Values set through ldflags always win.
func withEmbedded(info BuildInfo, bi *debug.BuildInfo) BuildInfo {
	if bi == nil {
		return info
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	ldflagsCommit := info.Commit != "unknown"
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if !ldflagsCommit {
				info.Commit = shortCommit(s.Value)
			}
		case "vcs.time":
			if info.Date == "unknown" {
				info.Date = s.Value
			}
		case "vcs.modified":
			if !ldflagsCommit {
				info.Modified = s.Value == "true"
			}
		}
	}
	return info
}

func shortCommit(rev string) string {
	if len(rev) > shortCommitLen {
		return rev[:shortCommitLen]
	}
	return rev
}

// String returns a formatted version string with all build info.
func String() string {
	info := GetInfo()
	commit := info.Commit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("roomsearch %s (commit: %s, built: %s, go: %s, %s/%s)",
		info.Version, commit, info.Date, info.GoVersion, info.OS, info.Arch)
}

// Short returns just the version string.
func Short() string {
	return GetInfo().Version
}
