// Package version provides the version and build information.
package version

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
)

// Name is the product name reported in user agents and status replies.
const Name = "TGNexus"

// Info is the version and build information of the current binary.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit"`   // BuildInfo's vcs.revision
	BuiltAt string `json:"built_at"` // BuildInfo's vcs.time
	Go      string `json:"go"`       // runtime.Version()
	OS      string `json:"os"`       // runtime.GOOS
	Arch    string `json:"arch"`     // runtime.GOARCH
}

// String implements the fmt.Stringer interface.
func (i Info) String() string {
	var sb strings.Builder
	sb.WriteString(i.Name + " " + i.Version + " (" + i.Go + ", " + i.OS + "/" + i.Arch + ")\n")
	if i.Commit != "" && i.BuiltAt != "" {
		sb.WriteString("commit " + i.Commit + "\n")
		sb.WriteString("built at " + i.BuiltAt + "\n")
	}
	return sb.String()
}

// Short returns the version, or the commit hash for development builds.
func (i Info) Short() string {
	if i.Version == "devel" && i.Commit != "" {
		return i.Commit
	}
	return i.Version
}

var (
	once    sync.Once
	cmdName string
	info    Info

	// overridden in tests
	loadFunc = debug.ReadBuildInfo
)

// CmdName returns the base name of the current binary.
func CmdName() string {
	once.Do(initOnce)
	return cmdName
}

// Version returns the version and build information of the current binary.
func Version() Info {
	once.Do(initOnce)
	return info
}

// UserAgent returns the User-Agent header value used for outgoing requests.
func UserAgent() string { return userAgent(Version()) }

func userAgent(i Info) string {
	return i.Name + "/" + i.Short() + " (+https://github.com/faye25tom/TGNexus)"
}

func initOnce() {
	cmdName = "tgnexus"
	if exe, err := os.Executable(); err == nil {
		cmdName = filepath.Base(exe)
	}
	info = loadInfo(loadFunc)
}

func loadInfo(load func() (*debug.BuildInfo, bool)) Info {
	i := Info{
		Name:    Name,
		Version: "devel",
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}

	bi, ok := load()
	if !ok {
		log.Printf("version: failed to read build information")
		return i
	}

	if v := bi.Main.Version; v != "" && v != "(devel)" {
		i.Version = v
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			i.Commit = s.Value
		case "vcs.time":
			i.BuiltAt = s.Value
		}
	}
	return i
}
