// Package systemd enables applications to signal readiness and update watchdog
// timestamp to systemd.
package systemd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"time"
)

// State defines a sd-notify protocol state.
// See https://www.freedesktop.org/software/systemd/man/sd_notify.html.
type State string

const (
	// Ready tells the service manager that service startup is
	// finished, or the service finished loading its configuration.
	Ready State = "READY=1"

	// Stopping tells the service manager that the service is beginning its
	// shutdown.
	Stopping State = "STOPPING=1"

	// Watchdog tells the service manager to update the watchdog timestamp.
	Watchdog State = "WATCHDOG=1"
)

// Notify sends a message to systemd using the sd_notify protocol. It does
// nothing when not running under systemd. Errors are logged to logger.
func Notify(logger *slog.Logger, state State) {
	addr := &net.UnixAddr{
		Net:  "unixgram",
		Name: os.Getenv("NOTIFY_SOCKET"),
	}
	if addr.Name == "" {
		return
	}

	conn, err := net.DialUnix(addr.Net, nil, addr)
	if err != nil {
		logger.Warn("systemd notification failed", "state", state, "error", err)
		return
	}
	defer conn.Close()

	if _, err = conn.Write([]byte(state)); err != nil {
		logger.Warn("systemd notification failed", "state", state, "error", err)
	}
}

// WatchdogLoop periodically updates systemd watchdog timestamp until ctx is
// canceled. It returns immediately if the watchdog is not enabled.
func WatchdogLoop(ctx context.Context, logger *slog.Logger) {
	if os.Getenv("WATCHDOG_USEC") == "" {
		return
	}

	interval, err := watchdogInterval()
	if err != nil {
		logger.Error("systemd watchdog disabled", "error", err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			Notify(logger, Watchdog)
		case <-ctx.Done():
			return
		}
	}
}

func watchdogInterval() (time.Duration, error) {
	s, err := strconv.Atoi(os.Getenv("WATCHDOG_USEC"))
	if err != nil {
		return 0, fmt.Errorf("converting WATCHDOG_USEC: %w", err)
	}
	if s <= 0 {
		return 0, errors.New("WATCHDOG_USEC must be a positive number")
	}
	// Systemd recommends notifying at half the interval.
	return time.Duration(s) * time.Microsecond / 2, nil
}
