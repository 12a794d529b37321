// Package version reports the build version of the echos commands.
package version

import "runtime/debug"

// Version is set at link time:
//
//	go build -ldflags "-X github.com/echosdaw/echos/version.Version=$(git describe --dirty)"
var Version string

// Revision is the short VCS revision the binary was built from, with a
// -dirty suffix for modified trees, or empty if unknown.
var Revision = revision()

func revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value[:min(7, len(s.Value))]
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev != "" && dirty {
		rev += "-dirty"
	}
	return rev
}

// String is Version if set, otherwise the revision, otherwise "devel".
func String() string {
	switch {
	case Version != "":
		return Version
	case Revision != "":
		return Revision
	}
	return "devel"
}
