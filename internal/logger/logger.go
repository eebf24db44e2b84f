// Package logger provides structured logging setup and a thread-safe
// [io.Writer] that buffers log lines in a ring buffer and allows them to be
// streamed through an HTTP endpoint or retrieved as a snapshot.
package logger

import (
	"container/ring"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// New returns a [slog.Logger] that writes text records to w and, if s is not
// nil, also to s. Debug records are emitted only if verbose is true.
func New(w io.Writer, s Streamer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if s != nil {
		w = io.MultiWriter(w, s)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Streamer is an io.Writer that contains all logged lines and allows to
// stream them.
type Streamer interface {
	io.Writer
	http.Handler

	// Lines returns all logged lines.
	Lines() []string

	// Stream generates a new channel which will stream any newly logged lines.
	// Deregister the stream by calling the close function.
	Stream() (<-chan string, func())
}

// NewStreamer returns a new Streamer backed by a ring buffer of the given size.
func NewStreamer(size int) Streamer {
	return &lineRingBuffer{
		size:    size,
		r:       ring.New(size),
		streams: make(map[chan string]struct{}),
	}
}

type lineRingBuffer struct {
	mu        sync.RWMutex
	size      int
	remainder string
	r         *ring.Ring
	streams   map[chan string]struct{}
}

func (lrb *lineRingBuffer) Write(b []byte) (int, error) {
	lrb.mu.Lock()
	defer lrb.mu.Unlock()
	text := lrb.remainder + string(b)
	for {
		idx := strings.IndexByte(text, '\n')
		if idx == -1 {
			break
		}

		line := text[:idx+1]
		lrb.r.Value = line
		for stream := range lrb.streams {
			select {
			case stream <- line:
			default:
				// Slow readers miss lines.
			}
		}
		lrb.r = lrb.r.Next()
		text = text[idx+1:]
	}
	lrb.remainder = text
	return len(b), nil
}

func (lrb *lineRingBuffer) Lines() []string {
	lrb.mu.RLock()
	defer lrb.mu.RUnlock()
	lines := make([]string, 0, lrb.size)
	lrb.r.Do(func(x any) {
		if x != nil {
			lines = append(lines, x.(string))
		}
	})
	return lines
}

func (lrb *lineRingBuffer) Stream() (<-chan string, func()) {
	lrb.mu.Lock()
	defer lrb.mu.Unlock()

	stream := make(chan string, lrb.size+1)
	lrb.streams[stream] = struct{}{}

	var once sync.Once
	return stream, func() {
		once.Do(func() {
			lrb.mu.Lock()
			defer lrb.mu.Unlock()
			delete(lrb.streams, stream)
			close(stream)
		})
	}
}

// ServeHTTP writes the buffered lines and then follows new ones until the
// client goes away. Clients that send "Accept: text/event-stream" get
// server-sent events.
func (lrb *lineRingBuffer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")

	evtStream := strings.Contains(strings.ToLower(r.Header.Get("Accept")), "text/event-stream")
	if evtStream {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}

	stream, closeFunc := lrb.Stream()
	defer closeFunc()

	write := func(line string) {
		if evtStream {
			// See https://developer.mozilla.org/en-US/docs/Web/API/Server-sent_events/Using_server-sent_events.
			line = fmt.Sprintf("event: logline\ndata: %s\n", line)
		}
		fmt.Fprint(w, line)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	for _, line := range lrb.Lines() {
		write(line)
	}

	for {
		select {
		case line := <-stream:
			write(line)
		case <-r.Context().Done():
			return
		}
	}
}

var _ Streamer = (*lineRingBuffer)(nil)
