package streaming

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// plainWriter is a ResponseWriter without Flush.
type plainWriter struct {
	header http.Header
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(int)             {}

// failingWriter accepts the headers and fails every write.
type failingWriter struct {
	*httptest.ResponseRecorder
	fail bool
}

func (f *failingWriter) Write(b []byte) (int, error) {
	if f.fail {
		return 0, errors.New("broken pipe")
	}
	return f.ResponseRecorder.Write(b)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.MaxDuration != 0 {
		t.Errorf("MaxDuration = %v, want unlimited", cfg.MaxDuration)
	}
}

func TestNewEventWriterSendsHeadersAndComment(t *testing.T) {
	w := httptest.NewRecorder()
	if _, err := NewEventWriter(context.Background(), w, Config{}); err != nil {
		t.Fatalf("NewEventWriter() error = %v", err)
	}

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !w.Flushed {
		t.Error("headers were not flushed")
	}
	if got := w.Body.String(); got != ": connected\n\n" {
		t.Errorf("body = %q", got)
	}
}

func TestNewEventWriterRequiresFlusher(t *testing.T) {
	w := &plainWriter{header: http.Header{}}
	_, err := NewEventWriter(context.Background(), w, DefaultConfig())
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
	if w.header.Get("Content-Type") != "" {
		t.Error("Content-Type left set on failure")
	}
}

func TestEventFormatting(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
		want  string
	}{
		{"named", "progress", `{"a":1}`, "event: progress\ndata: {\"a\":1}\n\n"},
		{"unnamed", "", "hello", "data: hello\n\n"},
		{"multi-line", "message", "one\ntwo", "event: message\ndata: one\ndata: two\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			ew, err := NewEventWriter(context.Background(), w, DefaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			w.Body.Reset()

			if err := ew.Event(tt.event, []byte(tt.data)); err != nil {
				t.Fatalf("Event() error = %v", err)
			}
			if got := w.Body.String(); got != tt.want {
				t.Errorf("body = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJSONAndStats(t *testing.T) {
	w := httptest.NewRecorder()
	ew, err := NewEventWriter(context.Background(), w, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	if err := ew.JSON("message", map[string]any{"key": "scan-1"}); err != nil {
		t.Fatalf("JSON() error = %v", err)
	}
	if err := ew.Comment("ping"); err != nil {
		t.Fatalf("Comment() error = %v", err)
	}
	if !strings.Contains(w.Body.String(), "event: message\ndata: {\"key\":\"scan-1\"}\n\n: ping\n\n") {
		t.Errorf("body = %q", w.Body.String())
	}

	stats := ew.Stats()
	if stats.Events != 1 {
		t.Errorf("Events = %d, want 1 (comments are not events)", stats.Events)
	}
	if stats.BytesWritten != int64(w.Body.Len()) {
		t.Errorf("BytesWritten = %d, want %d", stats.BytesWritten, w.Body.Len())
	}
}

func TestJSONEncodeError(t *testing.T) {
	ew, err := NewEventWriter(context.Background(), httptest.NewRecorder(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := ew.JSON("bad", make(chan int)); err == nil {
		t.Error("expected an encoding error")
	}
}

func TestWriteAfterClientGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ew, err := NewEventWriter(ctx, httptest.NewRecorder(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cancel()

	if err := ew.Comment("ping"); !errors.Is(err, ErrClientGone) {
		t.Errorf("error = %v, want ErrClientGone", err)
	}
}

func TestWriteFailureIsClientGone(t *testing.T) {
	w := &failingWriter{ResponseRecorder: httptest.NewRecorder()}
	ew, err := NewEventWriter(context.Background(), w, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	w.fail = true

	if err := ew.Event("message", []byte("x")); !errors.Is(err, ErrClientGone) {
		t.Errorf("error = %v, want ErrClientGone", err)
	}
	if ew.Stats().Events != 0 {
		t.Error("failed event was counted")
	}
}

func TestMaxDuration(t *testing.T) {
	ew, err := NewEventWriter(context.Background(), httptest.NewRecorder(), Config{MaxDuration: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	ew.start = time.Now().Add(-2 * time.Minute)

	if err := ew.Comment("ping"); !errors.Is(err, ErrWriteTimeout) {
		t.Errorf("error = %v, want ErrWriteTimeout", err)
	}
}

func TestStreamOverRealConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ew, err := NewEventWriter(r.Context(), w, Config{WriteTimeout: time.Second})
		if err != nil {
			t.Errorf("NewEventWriter() error = %v", err)
			return
		}
		_ = ew.Event("done", []byte("bye"))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	buf := new(strings.Builder)
	chunk := make([]byte, 256)
	for {
		n, err := resp.Body.Read(chunk)
		buf.Write(chunk[:n])
		if err != nil {
			break
		}
	}
	want := ": connected\n\nevent: done\ndata: bye\n\n"
	if buf.String() != want {
		t.Errorf("stream = %q, want %q", buf.String(), want)
	}
}
