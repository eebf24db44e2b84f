package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/faye25tom/TGNexus/internal/testutil"
)

func TestLoadInfo(t *testing.T) {
	cases := map[string]struct {
		bi          *debug.BuildInfo
		ok          bool
		wantVersion string
		wantCommit  string
		wantUA      string
	}{
		"release": {
			bi: &debug.BuildInfo{
				Main: debug.Module{Version: "v1.2.0"},
			},
			ok:          true,
			wantVersion: "v1.2.0",
			wantUA:      "TGNexus/v1.2.0 (+https://github.com/faye25tom/TGNexus)",
		},
		"development build with commit": {
			bi: &debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.time", Value: "2024-05-01T10:00:00Z"},
				},
			},
			ok:          true,
			wantVersion: "devel",
			wantCommit:  "abc123",
			wantUA:      "TGNexus/abc123 (+https://github.com/faye25tom/TGNexus)",
		},
		"no build info": {
			ok:          false,
			wantVersion: "devel",
			wantUA:      "TGNexus/devel (+https://github.com/faye25tom/TGNexus)",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			i := loadInfo(func() (*debug.BuildInfo, bool) { return tc.bi, tc.ok })
			testutil.AssertEqual(t, i.Version, tc.wantVersion)
			testutil.AssertEqual(t, i.Commit, tc.wantCommit)
			testutil.AssertEqual(t, userAgent(i), tc.wantUA)
		})
	}
}

func TestInfoString(t *testing.T) {
	i := Info{
		Name:    Name,
		Version: "devel",
		Commit:  "abc123",
		BuiltAt: "2024-05-01T10:00:00Z",
		Go:      "go1.24.0",
		OS:      "linux",
		Arch:    "amd64",
	}
	got := i.String()
	if !strings.HasPrefix(got, "TGNexus devel (go1.24.0, linux/amd64)\n") {
		t.Fatalf("unexpected first line: %q", got)
	}
	if !strings.Contains(got, "commit abc123\n") {
		t.Fatalf("commit is missing: %q", got)
	}
}
