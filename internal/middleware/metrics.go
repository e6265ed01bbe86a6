package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"photo-library/internal/metrics"
)

// MetricsConfig holds configuration for the metrics middleware
type MetricsConfig struct {
	// SkipPaths are paths that should not be recorded
	SkipPaths []string
	// StreamingPaths hold long-lived responses; their duration is the time
	// to the first byte.
	StreamingPaths []string
}

// DefaultMetricsConfig returns the default metrics configuration
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		SkipPaths:      []string{"/metrics", "/healthz", "/livez"},
		StreamingPaths: []string{"/api/notifications"},
	}
}

// Metrics returns a middleware that records Prometheus metrics. Installed
// with mux.Router.Use it labels requests by route template so ids do not
// inflate cardinality.
func Metrics(config MetricsConfig) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hasPrefix(r.URL.Path, config.SkipPaths) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.HTTPRequestsInFlight.Inc()
			defer metrics.HTTPRequestsInFlight.Dec()

			wrapped := newTimedResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := wrapped.duration()
			if hasPrefix(r.URL.Path, config.StreamingPaths) {
				duration = wrapped.timeToFirstByte()
			}
			path := routeTemplate(r)
			status := strconv.Itoa(wrapped.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration.Seconds())
		})
	}
}

// timedResponseWriter records the status and the time of the first write.
type timedResponseWriter struct {
	*responseWriter
	start     time.Time
	firstByte time.Time
}

func newTimedResponseWriter(w http.ResponseWriter) *timedResponseWriter {
	return &timedResponseWriter{responseWriter: newResponseWriter(w), start: time.Now()}
}

func (rw *timedResponseWriter) mark() {
	if rw.firstByte.IsZero() {
		rw.firstByte = time.Now()
	}
}

func (rw *timedResponseWriter) WriteHeader(code int) {
	rw.mark()
	rw.responseWriter.WriteHeader(code)
}

func (rw *timedResponseWriter) Write(b []byte) (int, error) {
	rw.mark()
	return rw.responseWriter.Write(b)
}

func (rw *timedResponseWriter) duration() time.Duration {
	return time.Since(rw.start)
}

func (rw *timedResponseWriter) timeToFirstByte() time.Duration {
	if rw.firstByte.IsZero() {
		return rw.duration()
	}
	return rw.firstByte.Sub(rw.start)
}

// routeTemplate returns the matched route's template, or "unmatched".
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
