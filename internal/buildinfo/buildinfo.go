// Package buildinfo reports the running binary's own path and version for
// the "execution" section of a measurement report.
package buildinfo

import (
	"os"
	"runtime/debug"
)

// Version returns the module version embedded by the Go toolchain (e.g.
// via `go install pkg@version`), or "(devel)" when built from a local
// checkout without a version stamp.
func Version() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "(unknown)"
	}
	if info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}

// Path returns the absolute path of the running executable, falling back
// to argv[0] if the OS cannot resolve it.
func Path() string {
	p, err := os.Executable()
	if err != nil {
		if len(os.Args) > 0 {
			return os.Args[0]
		}
		return ""
	}
	return p
}
