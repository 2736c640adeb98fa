package version

import (
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
)

// Header carries the client build's version on every request to the server.
const Header = "X-Client-Version"

const (
	versionDevel   = "devel"
	versionUnknown = "unknown"
	revisionLen    = 12
)

// version is set via ldflags at build time.
var version = versionDevel

var once sync.Once

// Get returns the ldflags version, the module version recorded by go install,
// or devel+<revision> for a local build.
func Get() string {
	once.Do(func() {
		if version != versionDevel {
			return
		}
		if info, ok := debug.ReadBuildInfo(); ok {
			version = fromBuildInfo(info)
		}
	})
	return version
}

func fromBuildInfo(info *debug.BuildInfo) string {
	if v := info.Main.Version; v != "" && v != "("+versionDevel+")" {
		return v
	}

	var revision string
	var modified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return versionDevel
	}
	v := versionDevel + "+" + revision[:min(len(revision), revisionLen)]
	if modified {
		v += "-dirty"
	}
	return v
}

// IsDevelopment reports whether v is a local or pseudo version that skips
// client compatibility checks.
func IsDevelopment(v string) bool {
	return v == "" || v == versionUnknown ||
		strings.HasPrefix(v, versionDevel) ||
		strings.Contains(v, "dirty") ||
		strings.Contains(v, "-0.")
}

// Major returns the major number of a semver string such as v2.3.4.
func Major(v string) (int, bool) {
	v = strings.TrimPrefix(v, "v")
	head, _, _ := strings.Cut(v, ".")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
