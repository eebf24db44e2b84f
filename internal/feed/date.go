package feed

import (
	"strings"
	"time"
)

var (
	rfc2822Layouts = []string{
		time.RFC1123Z,
		"Mon, 2 Jan 2006 15:04:05 -0700",
		time.RFC1123,
		"Mon, 2 Jan 2006 15:04:05 MST",
		"Mon, 02 Jan 2006 15:04 -0700",
		"Mon, 2 Jan 2006 15:04 -0700",
		"02 Jan 2006 15:04:05 -0700",
		"2 Jan 2006 15:04:05 -0700",
		"02 Jan 2006 15:04:05 MST",
		"2 Jan 2006 15:04:05 MST",
		time.RFC822Z,
		time.RFC822,
	}
	isoLayouts = []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
)

// ParseDate parses a feed date, trying RFC 2822 layouts and then ISO 8601
// ones. The zone is dropped: the result keeps the wall clock of the source
// offset, labeled UTC. Empty or unparseable input gives the zero time.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layouts := range [][]string{rfc2822Layouts, isoLayouts} {
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return naive(t)
			}
		}
	}
	return time.Time{}
}

// naive drops the zone of t, keeping its wall clock.
func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
