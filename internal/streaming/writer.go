package streaming

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// Sentinel errors for event streams.
var (
	// ErrWriteTimeout indicates that an event could not be delivered within
	// the write timeout or that the stream outlived MaxDuration.
	ErrWriteTimeout = errors.New("write timeout exceeded")

	// ErrClientGone indicates that the client disconnected.
	ErrClientGone = errors.New("client disconnected")

	// ErrUnsupported indicates that the response writer cannot flush.
	ErrUnsupported = errors.New("streaming unsupported")
)

// Config configures an EventWriter.
type Config struct {
	// WriteTimeout bounds the delivery of a single event
	WriteTimeout time.Duration
	// MaxDuration is the absolute maximum stream duration (0 = unlimited)
	MaxDuration time.Duration
}

// DefaultConfig returns the defaults used for notification streams.
func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		MaxDuration:  0,
	}
}

// Stats describes a stream.
type Stats struct {
	Events       int64
	BytesWritten int64
	Duration     time.Duration
}

// EventWriter writes a text/event-stream response. Every event is flushed
// and bounded by a write deadline when the connection supports one.
type EventWriter struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	ctx context.Context
	cfg Config

	mu           sync.Mutex
	start        time.Time
	events       int64
	bytesWritten int64
	deadlines    bool
}

// NewEventWriter sends the stream headers and an initial comment. It fails
// with ErrUnsupported before writing anything if w cannot flush.
func NewEventWriter(ctx context.Context, w http.ResponseWriter, cfg Config) (*EventWriter, error) {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}
	ew := &EventWriter{
		w:         w,
		rc:        http.NewResponseController(w),
		ctx:       ctx,
		cfg:       cfg,
		start:     time.Now(),
		deadlines: true,
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	if err := ew.rc.Flush(); errors.Is(err, http.ErrNotSupported) {
		h.Del("Content-Type")
		return nil, ErrUnsupported
	}
	if err := ew.Comment("connected"); err != nil {
		return nil, err
	}
	return ew, nil
}

// Comment writes an SSE comment line, used for keep-alives.
func (ew *EventWriter) Comment(text string) error {
	return ew.write([]byte(": " + text + "\n\n"))
}

// Event writes one named event. Multi-line data is split into several data
// fields.
func (ew *EventWriter) Event(name string, data []byte) error {
	var buf bytes.Buffer
	if name != "" {
		fmt.Fprintf(&buf, "event: %s\n", name)
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')

	if err := ew.write(buf.Bytes()); err != nil {
		return err
	}
	ew.mu.Lock()
	ew.events++
	ew.mu.Unlock()
	return nil
}

// JSON writes v as the data of one named event.
func (ew *EventWriter) JSON(name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", name, err)
	}
	return ew.Event(name, data)
}

// Stats returns the delivery counters.
func (ew *EventWriter) Stats() Stats {
	ew.mu.Lock()
	defer ew.mu.Unlock()
	return Stats{
		Events:       ew.events,
		BytesWritten: ew.bytesWritten,
		Duration:     time.Since(ew.start),
	}
}

func (ew *EventWriter) write(p []byte) error {
	if ew.ctx.Err() != nil {
		return ErrClientGone
	}
	if ew.cfg.MaxDuration > 0 && time.Since(ew.start) > ew.cfg.MaxDuration {
		return ErrWriteTimeout
	}

	ew.mu.Lock()
	defer ew.mu.Unlock()

	if ew.deadlines {
		if err := ew.rc.SetWriteDeadline(time.Now().Add(ew.cfg.WriteTimeout)); errors.Is(err, http.ErrNotSupported) {
			ew.deadlines = false
		}
	}

	n, err := ew.w.Write(p)
	ew.bytesWritten += int64(n)
	if err == nil {
		err = ew.rc.Flush()
	}
	if ew.deadlines {
		_ = ew.rc.SetWriteDeadline(time.Time{})
	}
	return ew.classify(err)
}

func (ew *EventWriter) classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return ErrWriteTimeout
	case ew.ctx.Err() != nil:
		return ErrClientGone
	default:
		return fmt.Errorf("%w: %v", ErrClientGone, err)
	}
}
