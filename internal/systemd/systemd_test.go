package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/faye25tom/TGNexus/internal/logger"
	"github.com/faye25tom/TGNexus/internal/testutil"
)

func listen(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	l, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listening on unixgram socket: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return l
}

func read(t *testing.T, l *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 512)
	n, _, err := l.ReadFromUnix(buf)
	if err != nil {
		t.Fatalf("reading from unixgram socket: %v", err)
	}
	return string(buf[:n])
}

func TestNotify(t *testing.T) {
	l := listen(t)
	Notify(logger.Discard(), Ready)
	testutil.AssertEqual(t, read(t, l), string(Ready))
}

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	Notify(logger.Discard(), Ready)
}

func TestWatchdogLoop(t *testing.T) {
	l := listen(t)
	t.Setenv("WATCHDOG_USEC", "250000")

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		defer close(done)
		WatchdogLoop(ctx, logger.Discard())
	}()

	testutil.AssertEqual(t, read(t, l), string(Watchdog))
	cancel()
	<-done

	l.SetReadDeadline(time.Now().Add(250 * time.Millisecond))
	buf := make([]byte, 512)
	// A tick may have raced with cancel; anything after it is a bug.
	l.ReadFromUnix(buf)
	if n, _, err := l.ReadFromUnix(buf); err == nil && n > 0 {
		t.Errorf("want no more messages, got %q", buf[:n])
	}
}

func TestWatchdogInterval(t *testing.T) {
	cases := map[string]struct {
		usec    string
		want    time.Duration
		wantErr bool
	}{
		"valid":    {usec: "2000000", want: time.Second},
		"garbage":  {usec: "soon", wantErr: true},
		"negative": {usec: "-1", wantErr: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("WATCHDOG_USEC", tc.usec)
			got, err := watchdogInterval()
			if (err != nil) != tc.wantErr {
				t.Fatalf("watchdogInterval() error = %v, wantErr %v", err, tc.wantErr)
			}
			testutil.AssertEqual(t, got, tc.want)
		})
	}
}
