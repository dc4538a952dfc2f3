// Package buildinfo contains build information and the subprogram showing
// it.
//
// The version can be overridden at build time by passing
// -ldflags "-X github.com/npc-cli/jsh/pkg/buildinfo.VersionOverride=value".
package buildinfo

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/npc-cli/jsh/pkg/prog"
)

// VersionBase is the version of the next release.
const VersionBase = "0.1.0"

// VersionOverride, when set, replaces the computed version.
var VersionOverride string

// Type describes a build.
type Type struct {
	Version   string `json:"version"`
	GoVersion string `json:"goversion"`
}

// Value describes the current build.
var Value = Type{
	Version:   version(VersionBase, VersionOverride, debug.ReadBuildInfo),
	GoVersion: runtime.Version(),
}

// Computes the version from the module information embedded by the Go
// toolchain. Builds outside a tagged module get a "-dev" suffix naming the
// commit when known.
func version(base, override string, read func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return override
	}
	bi, ok := read()
	if !ok {
		return base + "-dev.unknown"
	}
	if v := bi.Main.Version; v != "" && v != "(devel)" {
		return strings.TrimPrefix(v, "v")
	}
	var revision, modified string
	var when time.Time
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			when, _ = time.Parse(time.RFC3339, s.Value)
		case "vcs.modified":
			modified = s.Value
		}
	}
	if len(revision) < 12 || when.IsZero() {
		return base + "-dev.unknown"
	}
	v := fmt.Sprintf("%s-dev.%s-%s", base, when.UTC().Format("20060102150405"), revision[:12])
	if modified == "true" {
		v += "-dirty"
	}
	return v
}

// Program is the buildinfo subprogram, run with -version or -buildinfo.
type Program struct{}

func (Program) Run(fds [3]*os.File, f *prog.Flags, _ []string) error {
	switch {
	case f.BuildInfo:
		if f.JSON {
			return writeJSON(fds[1], Value)
		}
		fmt.Fprintln(fds[1], "Version:", Value.Version)
		fmt.Fprintln(fds[1], "Go version:", Value.GoVersion)
	case f.Version:
		if f.JSON {
			return writeJSON(fds[1], Value.Version)
		}
		fmt.Fprintln(fds[1], Value.Version)
	default:
		return prog.ErrNotSuitable
	}
	return nil
}

func writeJSON(f *os.File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(f, "%s\n", data)
	return err
}
