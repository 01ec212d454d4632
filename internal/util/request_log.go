package util

import (
	"net/http"
	"strings"
	"time"
)

type responseStats struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *responseStats) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseStats) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer so http.ResponseController can
// reach Flush on streaming responses.
func (w *responseStats) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// WithRequestLog logs one structured line per completed request. The
// context logger already carries request_id, so correlation comes free.
func WithRequestLog(service string, next http.Handler) http.Handler {
	service = strings.TrimSpace(service)
	if service == "" {
		service = "unknown"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		stats := &responseStats{ResponseWriter: w}
		next.ServeHTTP(stats, r)
		status := stats.status
		if status == 0 {
			status = http.StatusOK
		}
		LoggerFromContext(r.Context()).Info("http_request",
			"service", service,
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", stats.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
