package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// Submissions block until the external workflow finishes, so requests above
// this threshold are expected but worth flagging: they tell a slow engine
// apart from a slow gateway.
const slowRequestThreshold = 30 * time.Second

// responseTrace captures what the handler wrote so the access log can report
// it after the fact.
type responseTrace struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *responseTrace) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseTrace) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

// Logger writes one access log line per request, including the list filters
// carried in the query string and the response size.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseTrace{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		elapsed := time.Since(start)
		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", elapsed.Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if q := r.URL.RawQuery; q != "" {
			attrs = append(attrs, "query", q)
		}

		if elapsed >= slowRequestThreshold {
			slog.Warn("slow request", attrs...)
			return
		}
		slog.Info("request", attrs...)
	})
}
