package envflag

import (
	"flag"
	"io"
	"testing"
	"time"

	"github.com/faye25tom/TGNexus/internal/testutil"
)

func getenv(env map[string]string) func(string) string {
	return func(k string) string { return env[k] }
}

func TestValue(t *testing.T) {
	cases := map[string]struct {
		env         map[string]string
		args        []string
		wantAddr    string
		wantTimeout time.Duration
		wantVerbose bool
	}{
		"defaults": {
			wantAddr:    "localhost:3000",
			wantTimeout: 30 * time.Second,
		},
		"environment overrides defaults": {
			env:         map[string]string{"ADDR": ":8080", "TIMEOUT": "1m", "VERBOSE": "true"},
			wantAddr:    ":8080",
			wantTimeout: time.Minute,
			wantVerbose: true,
		},
		"flags override environment": {
			env:         map[string]string{"ADDR": ":8080"},
			args:        []string{"-addr", ":9090", "-timeout", "5s", "-verbose"},
			wantAddr:    ":9090",
			wantTimeout: 5 * time.Second,
			wantVerbose: true,
		},
		"invalid environment value is ignored": {
			env:         map[string]string{"TIMEOUT": "forever"},
			wantAddr:    "localhost:3000",
			wantTimeout: 30 * time.Second,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			fs := flag.NewFlagSet("test", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			addr := Value("addr", "ADDR", "localhost:3000", "Listen address.", fs, getenv(tc.env))
			timeout := Value("timeout", "TIMEOUT", 30*time.Second, "Timeout.", fs, getenv(tc.env))
			verbose := Value("verbose", "VERBOSE", false, "Verbose logging.", fs, getenv(tc.env))
			if err := fs.Parse(tc.args); err != nil {
				t.Fatal(err)
			}
			testutil.AssertEqual(t, *addr, tc.wantAddr)
			testutil.AssertEqual(t, *timeout, tc.wantTimeout)
			testutil.AssertEqual(t, *verbose, tc.wantVerbose)
		})
	}
}
